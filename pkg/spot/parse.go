package spot

import (
	"fmt"
	"strconv"
	"strings"

	dxerr "github.com/livp123/dxwatch/pkg/errors"
)

// ParseError describes why a candidate line did not produce a spot.
// Reason is one of the parse sentinels in pkg/errors.
type ParseError struct {
	Reason error
	Token  string
	Line   string
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("parse spot: %v", e.Reason)
	}
	return fmt.Sprintf("parse spot: %v %q", e.Reason, e.Token)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}

type parser interface {
	parse(c Candidate, flavor Format) (Spot, error)
}

var parsers = map[Grammar]parser{
	GrammarConventional: conventionalParser{},
	GrammarRBN:          rbnParser{},
}

// Parse converts a classified line into a Spot. Flavor tags spots of the
// conventional grammar; RBN spots are always tagged FormatRBN. On failure
// the returned Spot is the zero value.
func Parse(c Candidate, flavor Format) (Spot, error) {
	p, ok := parsers[c.Grammar]
	if !ok {
		return Spot{}, &ParseError{Reason: dxerr.ErrMalformedSpot, Token: c.Grammar.String(), Line: c.Line}
	}
	return p.parse(c, flavor)
}

// ParseLine classifies and parses in one step. ok is false for lines that
// are not spot announcements; err is set for announcements that failed to
// parse.
func ParseLine(line string, flavor Format) (s Spot, ok bool, err error) {
	c, ok := Classify(line)
	if !ok {
		return Spot{}, false, nil
	}
	s, err = Parse(c, flavor)
	return s, true, err
}

type conventionalParser struct{}

func (conventionalParser) parse(c Candidate, flavor Format) (Spot, error) {
	s, err := parseFields(c)
	if err != nil {
		return Spot{}, err
	}
	s.Format = flavor
	return s, nil
}

type rbnParser struct{}

func (rbnParser) parse(c Candidate, _ Format) (Spot, error) {
	if _, ok := rbnTelemetry(c.Fields); !ok {
		return Spot{}, &ParseError{Reason: dxerr.ErrMalformedSpot, Token: "rbn telemetry", Line: c.Line}
	}
	s, err := parseFields(c)
	if err != nil {
		return Spot{}, err
	}
	s.Format = FormatRBN
	return s, nil
}

// parseFields extracts the fields both grammars share:
// FREQ CALL [COMMENT...] TIME [LOCATOR]
func parseFields(c Candidate) (Spot, error) {
	fail := func(reason error, token string) (Spot, error) {
		return Spot{}, &ParseError{Reason: reason, Token: token, Line: c.Line}
	}

	if c.Spotter == "" {
		return fail(dxerr.ErrMalformedSpot, "")
	}
	fields := c.Fields
	if len(fields) == 0 {
		return fail(dxerr.ErrBadFrequency, "")
	}
	freq, ok := parseFrequency(fields[0])
	if !ok {
		return fail(dxerr.ErrBadFrequency, fields[0])
	}
	// A line cut after the frequency has neither call nor time.
	if len(fields) < 2 {
		return fail(dxerr.ErrMissingTimestamp, "")
	}
	call, ok := normalizeCall(fields[1])
	if !ok {
		return fail(dxerr.ErrBadCallsign, fields[1])
	}

	timeIdx, locator := -1, ""
	last := len(fields) - 1
	switch {
	case last >= 2 && isClock(fields[last]):
		timeIdx = last
	case last >= 3 && isLocator(fields[last]) && isClock(fields[last-1]):
		timeIdx, locator = last-1, strings.ToUpper(fields[last])
	}
	if timeIdx < 0 {
		return fail(dxerr.ErrMissingTimestamp, fields[last])
	}

	return Spot{
		FrequencyKHz: freq,
		DXCall:       call,
		Spotter:      c.Spotter,
		Time:         fields[timeIdx],
		Comment:      strings.Join(fields[2:timeIdx], " "),
		Locator:      locator,
	}, nil
}

// parseFrequency accepts plain decimal numbers only. strconv.ParseFloat alone
// would also take exponents, hex floats, "Inf" and "NaN".
func parseFrequency(tok string) (float64, bool) {
	digits, dots := 0, 0
	for i := 0; i < len(tok); i++ {
		switch ch := tok[i]; {
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '.':
			dots++
		default:
			return 0, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, false
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

// normalizeCall validates a callsign token (letters, digits, '/' separated
// portable segments; at least one letter and one digit) and upper-cases it.
func normalizeCall(tok string) (string, bool) {
	call := strings.ToUpper(tok)
	if call == "" || call[0] == '/' || call[len(call)-1] == '/' || strings.Contains(call, "//") {
		return "", false
	}
	letters, digits := 0, 0
	for i := 0; i < len(call); i++ {
		switch ch := call[i]; {
		case ch >= 'A' && ch <= 'Z':
			letters++
		case ch >= '0' && ch <= '9':
			digits++
		case ch == '/':
		default:
			return "", false
		}
	}
	return call, letters > 0 && digits > 0
}

// isClock matches HHMM or HHMMZ with a valid hour and minute.
func isClock(tok string) bool {
	_, _, ok := parseClock(tok)
	return ok
}

func parseClock(tok string) (hour, minute int, ok bool) {
	if len(tok) == 5 && (tok[4] == 'Z' || tok[4] == 'z') {
		tok = tok[:4]
	}
	if len(tok) != 4 {
		return 0, 0, false
	}
	for i := 0; i < 4; i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return 0, 0, false
		}
	}
	hour = int(tok[0]-'0')*10 + int(tok[1]-'0')
	minute = int(tok[2]-'0')*10 + int(tok[3]-'0')
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// isLocator matches a 4 or 6 character Maidenhead locator.
func isLocator(tok string) bool {
	if len(tok) != 4 && len(tok) != 6 {
		return false
	}
	up := strings.ToUpper(tok)
	if up[0] < 'A' || up[0] > 'R' || up[1] < 'A' || up[1] > 'R' {
		return false
	}
	if up[2] < '0' || up[2] > '9' || up[3] < '0' || up[3] > '9' {
		return false
	}
	if len(up) == 6 && (up[4] < 'A' || up[4] > 'X' || up[5] < 'A' || up[5] > 'X') {
		return false
	}
	return true
}
