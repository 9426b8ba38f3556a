package rcon

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`"[^"]*"|\S+`)

// SplitWords splits a command line on whitespace. A double-quoted span is
// kept as a single word with its quotes.
func SplitWords(line string) []string {
	matches := wordPattern.FindAllString(line, -1)
	if len(matches) == 0 {
		return nil
	}
	return matches
}

// Unquote strips every double quote from a word.
func Unquote(word string) string {
	return strings.ReplaceAll(word, `"`, "")
}
