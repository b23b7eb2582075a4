package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EmptyShortname is returned when nothing usable remains of the input.
const EmptyShortname = "untitled"

var (
	disallowedPattern = regexp.MustCompile(`[^\p{L}\p{N}_\s-]+`)
	separatorPattern  = regexp.MustCompile(`[-\s]+`)
	lower             = cases.Lower(language.Und)
)

// Shortname converts a headline into a lowercase identifier made of letters,
// digits and underscores. Diacritics are removed, characters other than
// letters, digits, underscores, whitespace and hyphens are dropped, and runs of
// whitespace or hyphens collapse into a single underscore. The result is
// deterministic and Shortname(Shortname(x)) == Shortname(x).
func Shortname(headline string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), headline)
	if err != nil {
		folded = headline
	}
	folded = strings.TrimSpace(lower.String(folded))
	folded = disallowedPattern.ReplaceAllString(folded, "")
	folded = separatorPattern.ReplaceAllString(folded, "_")
	folded = strings.Trim(folded, "_")
	if folded == "" {
		return EmptyShortname
	}
	return folded
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) <= limit {
		return string(r)
	}
	if limit == 1 {
		return "…"
	}
	return strings.TrimSpace(string(r[:limit-1])) + "…"
}
