package parser

import (
	"regexp"
	"strings"
)

// codePatterns are tried in order against a lowercased copy of the text and
// the first capture wins. The bare 6-digit pattern runs before the keyword
// patterns on purpose: a 6-digit run anywhere in the text (even a tracking
// number) beats a labeled code later in the text. Downstream callers rely on
// this ordering, so keep it.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{6})`),
	regexp.MustCompile(`code\s*[:\-\s]+(\d{4,8})`),
	regexp.MustCompile(`verification\s*code\s*[:\-\s]+(\d{4,8})`),
	regexp.MustCompile(`pin\s*[:\-\s]+(\d{4,8})`),
	regexp.MustCompile(`otp\s*[:\-\s]+(\d{4,8})`),
}

var digitRun = regexp.MustCompile(`\d+`)

// ExtractCode scans free-form text for a one-time verification code. It
// returns the first match of the ordered pattern chain, or a standalone run
// of 4 to 8 digits from the original text as a last resort.
func ExtractCode(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, pattern := range codePatterns {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			return m[1], true
		}
	}

	// Fallback: a maximal digit run of 4-8 digits is by construction not
	// adjacent to another digit on either side.
	for _, run := range digitRun.FindAllString(text, -1) {
		if len(run) >= 4 && len(run) <= 8 {
			return run, true
		}
	}

	return "", false
}

var (
	htmlBlocks = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>|<script[^>]*>.*?</script>|<[^>]+>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// StripHTML reduces HTML markup to plain text: style and script blocks go
// away with their content, remaining tags are dropped, and whitespace runs
// collapse to single spaces.
func StripHTML(markup string) string {
	text := htmlBlocks.ReplaceAllString(markup, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
