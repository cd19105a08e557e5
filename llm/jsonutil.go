package llm

import (
	"regexp"
	"strings"
)

// Model output rarely arrives as clean JSON: it is wrapped in markdown
// fences, followed by commentary, or carries // comments and trailing commas.
var (
	fencedObjectPattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(\\{.*\\})\\s*```")
	bareObjectPattern   = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	fencePattern        = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$")
	trailingCommaRe     = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON returns the first JSON object found in content, cleaned of
// comments and trailing commas, or "" when there is none.
func ExtractJSON(content string) string {
	var raw string
	if m := fencedObjectPattern.FindStringSubmatch(content); len(m) > 1 {
		raw = m[1]
	} else {
		raw = bareObjectPattern.FindString(content)
	}
	if raw == "" {
		return ""
	}
	return cleanJSON(raw)
}

// StripCodeFences removes markdown fence lines, keeping their contents.
func StripCodeFences(content string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(content, ""))
}

func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return trailingCommaRe.ReplaceAllString(strings.Join(lines, "\n"), "$1")
}

// stripLineComment drops a trailing // comment that sits outside any
// string literal, so URLs inside values survive.
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case escaped:
			escaped = false
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/':
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
