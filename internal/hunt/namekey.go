package hunt

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// HeaderMarker prefixes grid cells that name a round.
const HeaderMarker = "#"

// Normalize derives the identity key for a display name: surrounding
// whitespace trimmed, lower case, letters and digits kept, inner spaces and
// hyphens become "-", everything else dropped. Names that reduce to nothing
// keep their trimmed spelling as the key.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range norm.NFC.String(strings.ToLower(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return name
	}
	return b.String()
}

func IsHeader(cell string) bool {
	return strings.HasPrefix(strings.TrimSpace(cell), HeaderMarker)
}

func IsBlank(cell string) bool {
	return strings.TrimSpace(cell) == ""
}

// StripHeader returns the round name carried by a header cell.
func StripHeader(cell string) string {
	cell = strings.TrimSpace(cell)
	if !strings.HasPrefix(cell, HeaderMarker) {
		return cell
	}
	return strings.TrimSpace(strings.TrimPrefix(cell, HeaderMarker))
}
