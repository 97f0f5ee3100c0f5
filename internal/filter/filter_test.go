package filter

import (
	"testing"

	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cwSpot = spot.Spot{
	FrequencyKHz: 14025.0,
	DXCall:       "JA1ABC",
	Spotter:      "DL8LAS-#",
	Time:         "1234Z",
	Comment:      "CW 18 dB 25 WPM CQ",
	Format:       spot.FormatRBN,
}

var ssbSpot = spot.Spot{
	FrequencyKHz: 7150.0,
	DXCall:       "K1ABC",
	Spotter:      "W1AW",
	Time:         "1235Z",
	Comment:      "usb up 5",
	Locator:      "FN42",
	Format:       spot.FormatDXSpider,
}

// TestCompile_Match tests expression evaluation against spot fields
// TestCompile_Match 测试针对 spot 字段的表达式求值
func TestCompile_Match(t *testing.T) {
	tests := []struct {
		expr string
		cw   bool
		ssb  bool
	}{
		{"", true, true},
		{`band == "20m"`, true, false},
		{`band in ["40m", "80m"]`, false, true},
		{`freq >= 14000 && freq < 14070`, true, false},
		{`mode() == "CW"`, true, false},
		{`mode() == "SSB"`, false, true},
		{`prefix("ja")`, true, false},
		{`!prefix("K")`, true, false},
		{`contains("UP")`, false, true},
		{`comment contains "WPM"`, true, false},
		{`format == "rbn"`, true, false},
		{`locator != ""`, false, true},
		{`cluster == "rbn"`, true, false},
		{`like(spotter, "*-#")`, true, false},
		{`like(call, "k1*")`, false, true},
		{`spotter == "W1AW" || time == "1234Z"`, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.cw, f.Match("rbn", cwSpot), "cw spot")
			assert.Equal(t, tt.ssb, f.Match("dxspider", ssbSpot), "ssb spot")
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	for _, src := range []string{
		`band ==`,
		`freq + 1`,
		`unknown_field == 1`,
	} {
		_, err := Compile(src)
		assert.ErrorIs(t, err, dxerr.ErrInvalidExpression, src)
	}
}

func TestFilter_Nil(t *testing.T) {
	var f *Filter
	assert.True(t, f.Match("x", cwSpot))
	assert.Equal(t, "", f.String())
}

func TestHolder(t *testing.T) {
	h := NewHolder(MustCompile(`band == "20m"`))
	assert.True(t, h.Load().Match("", cwSpot))

	h.Store(MustCompile(`band == "40m"`))
	assert.False(t, h.Load().Match("", cwSpot))
	assert.Equal(t, `band == "40m"`, h.Load().String())
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("((") })
}
