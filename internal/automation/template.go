package automation

import (
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)
	doubleSpaceRe = regexp.MustCompile(` {2,}`)
)

// RenderTemplate substitutes {{variable}} placeholders in body from vars.
// Placeholders with no value are stripped rather than left literal, and
// doubled spaces left behind by a stripped placeholder are collapsed.
func RenderTemplate(body string, vars map[string]string) string {
	out := placeholderRe.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		return vars[name]
	})
	out = doubleSpaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
