package tts

import (
	"regexp"
	"strings"
)

// normalizeTextForTTS strips formatting the synthesizer would read out loud:
// markdown markup, emojis and repeated whitespace.
func normalizeTextForTTS(text string) string {
	text = removeMarkdown(text)
	text = removeEmojis(text)
	text = collapseWhitespace(text)
	return strings.TrimSpace(text)
}

func removeMarkdown(text string) string {
	for _, marker := range []string{"**", "__", "~~", "*", "`", "#"} {
		text = strings.ReplaceAll(text, marker, "")
	}
	return text
}

func removeEmojis(text string) string {
	return removeEmojiRegex.ReplaceAllString(text, "")
}

func collapseWhitespace(text string) string {
	return multipleSpacesRegex.ReplaceAllString(text, " ")
}

var (
	removeEmojiRegex    = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{Z}]`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
)
