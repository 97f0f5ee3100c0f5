package transport

import (
	"strings"
	"unicode"
)

// Telnet command bytes.
const (
	telnetIAC  = 255
	telnetSB   = 250
	telnetSE   = 240
	telnetWILL = 251
	telnetDONT = 254
)

type iacState int

const (
	iacData iacState = iota
	iacCommand
	iacOption
	iacSub
	iacSubCommand
)

// iacFilter strips telnet negotiation from the byte stream. State is kept
// across reads since a sequence can straddle two of them.
type iacFilter struct {
	state iacState
}

func (f *iacFilter) appendTo(dst, src []byte) []byte {
	for _, b := range src {
		switch f.state {
		case iacData:
			if b == telnetIAC {
				f.state = iacCommand
				continue
			}
			dst = append(dst, b)
		case iacCommand:
			switch {
			case b == telnetSB:
				f.state = iacSub
			case b >= telnetWILL && b <= telnetDONT:
				f.state = iacOption
			default:
				// Two-byte command, or an escaped 0xFF which is not text anyway.
				f.state = iacData
			}
		case iacOption:
			f.state = iacData
		case iacSub:
			if b == telnetIAC {
				f.state = iacSubCommand
			}
		case iacSubCommand:
			if b == telnetSE {
				f.state = iacData
			} else {
				f.state = iacSub
			}
		}
	}
	return dst
}

// cleanLine turns raw line bytes (terminator removed) into text: invalid
// UTF-8 is substituted, control characters other than tab are dropped (BEL
// in particular) and trailing whitespace is trimmed.
func cleanLine(raw []byte) string {
	s := strings.ToValidUTF8(string(raw), "\uFFFD")
	s = strings.Map(func(r rune) rune {
		if r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimRightFunc(s, unicode.IsSpace)
}

// CleanText applies the line cleanup to text framed by another reader.
func CleanText(s string) string {
	return cleanLine([]byte(strings.TrimRight(s, "\r\n")))
}
