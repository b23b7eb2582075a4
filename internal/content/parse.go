package content

import (
	"errors"
	"strings"
)

type parsedResponse struct {
	Headline    string
	Explanation string
	Code        string
}

// parseResponse splits model output in the HEADLINE / EXPLANATION / CODE
// layout. Explanation continuation lines are joined with spaces; everything
// after CODE: is code, minus surrounding markdown fences.
func parseResponse(text string) (parsedResponse, error) {
	var (
		out     parsedResponse
		section string
		code    []string
		explain []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case section != "code" && strings.HasPrefix(trimmed, "HEADLINE:"):
			out.Headline = strings.TrimSpace(strings.TrimPrefix(trimmed, "HEADLINE:"))
			section = "headline"
		case section != "code" && strings.HasPrefix(trimmed, "EXPLANATION:"):
			if first := strings.TrimSpace(strings.TrimPrefix(trimmed, "EXPLANATION:")); first != "" {
				explain = append(explain, first)
			}
			section = "explanation"
		case section != "code" && strings.HasPrefix(trimmed, "CODE:"):
			if rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "CODE:")); rest != "" {
				code = append(code, rest)
			}
			section = "code"
		case section == "code":
			code = append(code, line)
		case section == "explanation" && trimmed != "":
			explain = append(explain, trimmed)
		}
	}
	out.Headline = strings.Trim(out.Headline, `*"' `)
	out.Explanation = strings.Join(explain, " ")
	out.Code = stripFences(strings.TrimSpace(strings.Join(code, "\n")))

	if out.Headline == "" {
		return parsedResponse{}, errors.New("response has no HEADLINE section")
	}
	if out.Code == "" {
		return parsedResponse{}, errors.New("response has no CODE section")
	}
	return out, nil
}

func stripFences(code string) string {
	if !strings.HasPrefix(code, "```") {
		return code
	}
	lines := strings.Split(code, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
