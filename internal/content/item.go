package content

import (
	"errors"
	"time"
)

// ErrNotAvailable reports that no new item could be produced: the model path
// failed or is disabled and every pool entry is already taken.
var ErrNotAvailable = errors.New("no new content item available")

// ErrExists reports that the target file is already present in the content
// directory.
var ErrExists = errors.New("content file already exists")

// Item is one generated tip. Values are immutable once created.
type Item struct {
	Headline    string    `json:"headline"`
	Shortname   string    `json:"shortname"`
	Body        string    `json:"content"`
	Filename    string    `json:"filename"`
	CreatedAt   time.Time `json:"date"`
	Explanation string    `json:"explanation,omitempty"`
	Code        string    `json:"code,omitempty"`
}

// Validate reports whether the item carries the fields every consumer relies on.
func (i Item) Validate() error {
	switch {
	case i.Headline == "":
		return errors.New("content item: headline is empty")
	case i.Shortname == "":
		return errors.New("content item: shortname is empty")
	case i.Filename == "":
		return errors.New("content item: filename is empty")
	case i.Body == "":
		return errors.New("content item: body is empty")
	case i.CreatedAt.IsZero():
		return errors.New("content item: created timestamp is zero")
	}
	return nil
}
