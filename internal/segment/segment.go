// Package segment splits document text on a delimiter and joins segments back.
package segment

import (
	"strings"

	"github.com/dshills/tokensplit/pkg/types"
)

// Split breaks text on delim, trims surrounding whitespace from each piece and
// drops the pieces that end up empty. Returned segments carry their index but
// no token counts.
func Split(text, delim string) []types.Segment {
	if delim == "" {
		return nil
	}

	parts := strings.Split(text, delim)
	segments := make([]types.Segment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, types.Segment{
			Index: len(segments),
			Text:  part,
		})
	}
	return segments
}

// Texts returns the text of each segment in order.
func Texts(segments []types.Segment) []string {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	return texts
}

// Weights returns the token count of each segment in order.
func Weights(segments []types.Segment) []int {
	weights := make([]int, len(segments))
	for i, s := range segments {
		weights[i] = s.Tokens
	}
	return weights
}

// Join concatenates the segments of r with delim between neighbours.
func Join(segments []types.Segment, r types.Range, delim string) string {
	var b strings.Builder
	for i := r.Start; i <= r.End; i++ {
		if i > r.Start {
			b.WriteString(delim)
		}
		b.WriteString(segments[i].Text)
	}
	return b.String()
}
