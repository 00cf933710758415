package agent

import (
	"regexp"
	"strings"
)

// The model is told not to emit markdown or escape sequences but does
// not always comply. NormalizeReply cleans what slipped through. The
// pass is idempotent: normalize(normalize(x)) == normalize(x).
var (
	// Literal escaped newlines, single or double backslash, with or
	// without surrounding spaces. Doubled sequences become a paragraph
	// break, single ones a line break.
	escapedParaRe = regexp.MustCompile(`[ \t]*(?:\\\\n\\\\n|\\n\\n)[ \t]*`)
	escapedLineRe = regexp.MustCompile(`[ \t]*(?:\\\\n|\\n)[ \t]*`)

	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe = regexp.MustCompile(`\*([^*\n]+?)\*`)

	// Leading list markers, repeated markers stripped in one match so a
	// second pass finds nothing.
	listMarkerRe = regexp.MustCompile(`(?m)^[ \t]*(?:(?:[-*•]|\d+\.)[ \t]+)+`)

	trailingPadRe = regexp.MustCompile(`[ \t]+\n`)
	leadingPadRe  = regexp.MustCompile(`\n[ \t]+`)
	multiBreakRe  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeReply applies the full cleanup pass to the model's final
// text before fragmentation.
func NormalizeReply(text string) string {
	// Escape sequences first: they may reveal line starts that carry
	// list markers.
	text = escapedParaRe.ReplaceAllString(text, "\n\n")
	text = escapedLineRe.ReplaceAllString(text, "\n")

	// Emphasis before list markers: stripping ** can expose a marker
	// at the start of a line.
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")

	text = listMarkerRe.ReplaceAllString(text, "")

	text = trailingPadRe.ReplaceAllString(text, "\n")
	text = leadingPadRe.ReplaceAllString(text, "\n")
	text = multiBreakRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
