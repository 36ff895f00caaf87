// Package sms enforces the outbound SMS character budget.
//
// Lengths are counted in Unicode code points, so multi-byte characters count once.
package sms

import (
	"strings"
	"unicode"
)

const (
	// SegmentLimit is the maximum number of characters in one SMS segment.
	SegmentLimit = 160
	// Ellipsis is appended to truncated text.
	Ellipsis = "..."
)

// EnsureLimit truncates text to fit a single segment. Text over the limit is cut to
// SegmentLimit-len(Ellipsis) characters and suffixed with Ellipsis.
func EnsureLimit(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= SegmentLimit {
		return text
	}
	keep := SegmentLimit - len(Ellipsis)
	return strings.TrimRightFunc(string(runes[:keep]), unicode.IsSpace) + Ellipsis
}

// SplitIntoChunks breaks text into segments of at most SegmentLimit characters.
func SplitIntoChunks(text string) []string {
	return SplitIntoChunksWithLimit(text, SegmentLimit)
}

// SplitIntoChunksWithLimit breaks text on the last whitespace at or before limit, repeating
// until the remainder fits. A run without whitespace longer than limit is split hard.
// Joining the chunks with single spaces reproduces the input modulo whitespace trimming.
func SplitIntoChunksWithLimit(text string, limit int) []string {
	if limit <= 0 {
		limit = SegmentLimit
	}
	remaining := []rune(strings.TrimSpace(text))
	if len(remaining) == 0 {
		return nil
	}

	var chunks []string
	for len(remaining) > limit {
		cut := -1
		// index limit itself may be whitespace: the chunk is then exactly limit long
		for i := limit; i > 0; i-- {
			if unicode.IsSpace(remaining[i]) {
				cut = i
				break
			}
		}
		if cut <= 0 {
			cut = limit
		}
		chunk := strings.TrimRightFunc(string(remaining[:cut]), unicode.IsSpace)
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = []rune(strings.TrimLeftFunc(string(remaining[cut:]), unicode.IsSpace))
	}
	if len(remaining) > 0 {
		chunks = append(chunks, string(remaining))
	}
	return chunks
}

// Length returns the number of characters text occupies in an SMS.
func Length(text string) int {
	return len([]rune(text))
}
