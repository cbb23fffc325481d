package utils

import "strings"

// Truncate returns s truncated to maxLen bytes. When possible the cut is made
// at the last space within the final 20% of the limit, so indexed content does
// not end mid-word. If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if i := strings.LastIndexByte(cut, ' '); i >= maxLen*4/5 {
		cut = cut[:i]
	}
	return cut
}

// Clamp01 clamps v to the [0,1] range.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
