package services

import (
	"regexp"
	"strings"
)

var (
	headingPattern   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	emphasisPattern  = regexp.MustCompile(`(\*\*|__|\*|_)(.*?)(\*\*|__|\*|_)`)
	linkPattern      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	inlineCodePat    = regexp.MustCompile("`([^`]*)`")
	codeFencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\n?(.*?)```")
	listPattern      = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	blankRunPattern  = regexp.MustCompile(`\n{3,}`)
)

// CleanMarkdown strips markdown syntax so summaries and answers can be fed to
// plain-text consumers such as reports or speech synthesis.
func CleanMarkdown(text string) string {
	cleaned := codeFencePattern.ReplaceAllString(text, "$1")
	cleaned = headingPattern.ReplaceAllString(cleaned, "")
	cleaned = linkPattern.ReplaceAllString(cleaned, "$1")
	cleaned = emphasisPattern.ReplaceAllString(cleaned, "$2")
	cleaned = inlineCodePat.ReplaceAllString(cleaned, "$1")
	cleaned = listPattern.ReplaceAllString(cleaned, "")
	cleaned = blankRunPattern.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
