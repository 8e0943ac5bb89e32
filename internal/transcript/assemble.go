// Package transcript assembles recognizer segments into a single utterance.
package transcript

import (
	"regexp"
	"strings"
)

// Recognizers annotate silence and noise with bracketed markers such as
// "[BLANK_AUDIO]" or "(music)". They are never spoken text.
var nonSpeechMarker = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|\*[^*]*\*`)

// Options controls transcript assembly.
type Options struct {
	// KeepMarkers leaves non-speech annotations in place.
	KeepMarkers bool
}

// Assemble joins final recognizer segments, strips non-speech annotations
// and collapses whitespace. The result is empty when nothing was spoken.
func Assemble(segments []string, opts Options) string {
	if len(segments) == 0 {
		return ""
	}

	joined := strings.Join(segments, " ")
	if !opts.KeepMarkers {
		joined = nonSpeechMarker.ReplaceAllString(joined, " ")
	}
	return strings.Join(strings.Fields(joined), " ")
}

// Empty reports whether text carries no spoken content.
func Empty(text string) bool {
	return Assemble([]string{text}, Options{}) == ""
}
