package utils

import (
	"regexp"
	"strings"
)

var wordRegex = regexp.MustCompile(`\S+`)

const DefaultTitleWords = 8

// TitleFromText builds a short single-line title from the first maxWords
// words of text. Longer text is marked with a trailing ellipsis.
func TitleFromText(text string, maxWords int) string {
	words := wordRegex.FindAllString(text, -1)
	if len(words) == 0 || maxWords <= 0 {
		return ""
	}
	if len(words) <= maxWords {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

func DefaultTitle(text string) string {
	return TitleFromText(text, DefaultTitleWords)
}
