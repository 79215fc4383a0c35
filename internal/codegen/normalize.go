package codegen

import (
	"regexp"
	"strings"
)

const indentUnit = "    "

var (
	leadingFence  = regexp.MustCompile("^```[\\w+#.-]*[ \\t]*\\n")
	trailingFence = regexp.MustCompile("\\n?```$")
	extraNewlines = regexp.MustCompile(`\n{3,}`)
)

var (
	blockKeywords = []string{
		"def ", "class ", "if ", "elif ", "else:", "for ",
		"while ", "try:", "except:", "finally:",
	}
	continuationKeywords = []string{"else:", "elif ", "except:", "finally:"}
	closingKeywords      = []string{"return", "break", "continue", "pass"}
)

// Normalize cleans model output into plain, consistently indented code.
//
// It strips a leading ```lang fence and a trailing ``` fence, trims
// surrounding whitespace, collapses runs of blank lines to one, and then
// re-indents every line with a single running level in four-space units:
//
//   - a line opening a block (def, class, if, for, while, try:, ...) is
//     written at the current level and raises it when it ends with ':'
//     and is not else:, elif, except: or finally:
//   - return, break, continue and pass are written at the current level
//     and then lower it
//   - a line starting with ')' lowers the level before it is written
//
// The level never drops below zero. This is a heuristic, not a parser: it
// does not track nested scopes and will misplace code that follows a
// nested block.
func Normalize(raw string) string {
	code := strings.ReplaceAll(raw, "\r\n", "\n")
	code = strings.TrimSpace(code)
	code = leadingFence.ReplaceAllString(code, "")
	code = trailingFence.ReplaceAllString(code, "")
	code = strings.TrimSpace(code)
	code = extraNewlines.ReplaceAllString(code, "\n\n")

	if code == "" {
		return ""
	}

	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	level := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)

		switch {
		case line == "":
			out = append(out, "")

		case hasAnyPrefix(line, blockKeywords):
			out = append(out, indent(level, line))
			if strings.HasSuffix(line, ":") && !hasAnyPrefix(line, continuationKeywords) {
				level++
			}

		case startsWithWord(line, closingKeywords):
			out = append(out, indent(level, line))
			level = max(0, level-1)

		case strings.HasPrefix(line, ")"):
			level = max(0, level-1)
			out = append(out, indent(level, line))

		default:
			out = append(out, indent(level, line))
		}
	}

	return strings.Join(out, "\n")
}

func indent(level int, line string) string {
	return strings.Repeat(indentUnit, level) + line
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// startsWithWord matches a keyword only as a whole word, so "passwd = 1"
// is not a pass statement
func startsWithWord(s string, words []string) bool {
	for _, w := range words {
		if !strings.HasPrefix(s, w) {
			continue
		}
		rest := s[len(w):]
		if rest == "" || !isIdentByte(rest[0]) {
			return true
		}
	}
	return false
}

func isIdentByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
