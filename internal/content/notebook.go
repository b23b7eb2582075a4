package content

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type notebook struct {
	Cells         []any            `json:"cells"`
	Metadata      notebookMetadata `json:"metadata"`
	NBFormat      int              `json:"nbformat"`
	NBFormatMinor int              `json:"nbformat_minor"`
}

type markdownCell struct {
	CellType string         `json:"cell_type"`
	Metadata map[string]any `json:"metadata"`
	Source   []string       `json:"source"`
}

type codeCell struct {
	CellType       string         `json:"cell_type"`
	ExecutionCount *int           `json:"execution_count"`
	Metadata       map[string]any `json:"metadata"`
	Outputs        []any          `json:"outputs"`
	Source         []string       `json:"source"`
}

type notebookMetadata struct {
	KernelSpec   kernelSpec   `json:"kernelspec"`
	LanguageInfo languageInfo `json:"language_info"`
}

type kernelSpec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

type languageInfo struct {
	Name string `json:"name"`
}

// RenderNotebook builds an nbformat 4.4 document with a markdown cell holding
// the title, explanation and generation date, followed by a code cell.
func RenderNotebook(topic, headline, explanation, code string, generated time.Time) (string, error) {
	markdown := fmt.Sprintf("# %s Tip: %s\n\n%s\n\n**Generated on:** %s",
		topic, headline, explanation, generated.Format(time.DateOnly))
	doc := notebook{
		Cells: []any{
			markdownCell{CellType: "markdown", Metadata: map[string]any{}, Source: sourceLines(markdown)},
			codeCell{CellType: "code", Metadata: map[string]any{}, Outputs: []any{}, Source: sourceLines(code)},
		},
		Metadata: notebookMetadata{
			KernelSpec:   kernelSpec{DisplayName: "Python 3", Language: "python", Name: "python3"},
			LanguageInfo: languageInfo{Name: "python"},
		},
		NBFormat:      4,
		NBFormatMinor: 4,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode notebook: %w", err)
	}
	return string(data) + "\n", nil
}

// sourceLines splits text the way notebooks store cell sources: every line
// keeps its trailing newline except the last.
func sourceLines(text string) []string {
	if text == "" {
		return []string{}
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
