package spot

import (
	"strings"
)

// Prefix is the leading marker every supported cluster puts in front of a
// DX announcement.
const Prefix = "DX de "

// Grammar is the line shape selected by Classify. The set is closed: every
// grammar has an entry in the parser table in parse.go.
type Grammar int

const (
	// GrammarConventional covers DXSpider, AR-Cluster and CC Cluster, which
	// agree at the field level.
	GrammarConventional Grammar = iota
	// GrammarRBN carries mode/SNR/speed telemetry between call and comment.
	GrammarRBN
)

func (g Grammar) String() string {
	switch g {
	case GrammarConventional:
		return "conventional"
	case GrammarRBN:
		return "rbn"
	}
	return "unknown"
}

// Candidate is a line that passed the prefix test.
type Candidate struct {
	Grammar Grammar
	Spotter string
	// Fields are the whitespace separated tokens after the spotter colon.
	Fields []string
	Line   string
}

// Classify reports whether line is a spot announcement and which grammar
// applies. Non-spot lines return false and are meant to be dropped silently.
func Classify(line string) (Candidate, bool) {
	if len(line) < len(Prefix) || !strings.EqualFold(line[:len(Prefix)], Prefix) {
		return Candidate{}, false
	}
	rest := strings.TrimLeft(line[len(Prefix):], " \t")
	colon := strings.IndexByte(rest, ':')
	if colon <= 0 {
		return Candidate{}, false
	}
	spotter := rest[:colon]
	if strings.ContainsAny(spotter, " \t") {
		return Candidate{}, false
	}

	fields := strings.Fields(rest[colon+1:])
	grammar := GrammarConventional
	if _, ok := rbnTelemetry(fields); ok {
		grammar = GrammarRBN
	}
	return Candidate{
		Grammar: grammar,
		Spotter: spotter,
		Fields:  fields,
		Line:    line,
	}, true
}

// rbnModes are the mode tokens the Reverse Beacon Network publishes.
var rbnModes = map[string]bool{
	"CW":     true,
	"RTTY":   true,
	"FT8":    true,
	"FT4":    true,
	"PSK31":  true,
	"PSK63":  true,
	"PSK125": true,
	"BPSK":   true,
	"BPSK31": true,
	"MSK144": true,
	"JT65":   true,
	"JT9":    true,
	"Q65":    true,
	"SSTV":   true,
}

// rbnTelemetry looks for "<MODE> <SNR> dB" after the frequency and call
// tokens and returns the index of the mode token. The "<SPEED> WPM|BPS" pair
// that follows for CW and RTTY is optional because digital modes omit it.
func rbnTelemetry(fields []string) (int, bool) {
	for i := 2; i+2 < len(fields); i++ {
		if !rbnModes[strings.ToUpper(fields[i])] {
			continue
		}
		if isSignedInt(fields[i+1]) && strings.EqualFold(fields[i+2], "dB") {
			return i, true
		}
	}
	return 0, false
}

func isSignedInt(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// formatMarkers map banner substrings (lower case) to the flavor that
// prints them when a user logs in.
var formatMarkers = []struct {
	marker string
	format Format
}{
	{"reverse beacon", FormatRBN},
	{"dxspider", FormatDXSpider},
	{"dx spider", FormatDXSpider},
	{"ar-cluster", FormatARCluster},
	{"arcluster", FormatARCluster},
	{"ar cluster", FormatARCluster},
	{"cc-cluster", FormatCCCluster},
	{"cc cluster", FormatCCCluster},
	{"cccluster", FormatCCCluster},
	{"cc user", FormatCCCluster},
}

// DetectFormat recognizes a server's self-identification in a banner or
// welcome line.
func DetectFormat(line string) (Format, bool) {
	lower := strings.ToLower(line)
	for _, m := range formatMarkers {
		if strings.Contains(lower, m.marker) {
			return m.format, true
		}
	}
	return FormatUnknown, false
}
