package integrity

import "unicode/utf16"

// additive32 is the string hash used by version 1 saves: h = h*31 + unit
// over the UTF-16 code units of the text, wrapping at 32 bits.
func additive32(text []byte) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(string(text))) {
		h = h*31 + int32(unit)
	}
	return h
}
