// Package spot turns DX cluster announcement lines into structured spots.
//
// A line goes through two steps: Classify decides whether it is a spot
// announcement at all and which grammar applies, Parse extracts the fields.
// Lines that are not announcements (banners, talk, WCY/WWV bulletins,
// prompts) are ignored without an error.
package spot

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Format identifies the server flavor whose grammar produced a spot.
type Format int

const (
	FormatUnknown Format = iota
	FormatDXSpider
	FormatARCluster
	FormatCCCluster
	FormatRBN
)

var formatNames = map[Format]string{
	FormatUnknown:   "unknown",
	FormatDXSpider:  "dxspider",
	FormatARCluster: "ar-cluster",
	FormatCCCluster: "cc-cluster",
	FormatRBN:       "rbn",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat maps a configuration value to a Format. The empty string maps
// to FormatUnknown, which means "detect from the server banner".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto", "unknown":
		return FormatUnknown, nil
	case "dxspider", "spider":
		return FormatDXSpider, nil
	case "ar-cluster", "arcluster", "ar":
		return FormatARCluster, nil
	case "cc-cluster", "cccluster", "cc":
		return FormatCCCluster, nil
	case "rbn":
		return FormatRBN, nil
	}
	return FormatUnknown, fmt.Errorf("unknown cluster format %q", s)
}

func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Spot is one announcement that a station was heard on a frequency.
type Spot struct {
	FrequencyKHz float64 `json:"frequency_khz"`
	DXCall       string  `json:"dx_call"`
	Spotter      string  `json:"spotter"`
	// Time is the HHMM or HHMMZ token exactly as published. Cluster feeds
	// carry no date; use At to place it on the time line.
	Time    string `json:"time"`
	Comment string `json:"comment"`
	Locator string `json:"locator,omitempty"`
	Format  Format `json:"format"`
}

// Clock returns the hour and minute of the published time.
func (s Spot) Clock() (hour, minute int, ok bool) {
	return parseClock(s.Time)
}

// At resolves the published time of day to the most recent matching UTC
// instant relative to now. A spot stamped up to one minute ahead of now is
// treated as the current day, to absorb clock skew between server and client.
func (s Spot) At(now time.Time) (time.Time, bool) {
	hour, minute, ok := s.Clock()
	if !ok {
		return time.Time{}, false
	}
	now = now.UTC()
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if t.After(now.Add(time.Minute)) {
		t = t.AddDate(0, 0, -1)
	}
	return t, true
}

func (s Spot) String() string {
	return fmt.Sprintf("%s de %s %.1f %s %s", s.DXCall, s.Spotter, s.FrequencyKHz, s.Comment, s.Time)
}
