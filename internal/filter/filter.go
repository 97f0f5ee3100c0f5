// Package filter selects spots with expr-lang boolean expressions such as
//
//	band == "20m" && mode() == "CW" && !prefix("K")
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/livp123/dxwatch/pkg/band"
	dxerr "github.com/livp123/dxwatch/pkg/errors"
	"github.com/livp123/dxwatch/pkg/spot"
)

// Env is the environment an expression runs against.
type Env struct {
	Freq    float64 `expr:"freq"`
	Call    string  `expr:"call"`
	Spotter string  `expr:"spotter"`
	Comment string  `expr:"comment"`
	Time    string  `expr:"time"`
	Locator string  `expr:"locator"`
	Format  string  `expr:"format"`
	Band    string  `expr:"band"`
	Cluster string  `expr:"cluster"`
}

var envPool = sync.Pool{
	New: func() interface{} { return &Env{} },
}

func (e *Env) fill(cluster string, s spot.Spot) {
	e.Freq = s.FrequencyKHz
	e.Call = s.DXCall
	e.Spotter = s.Spotter
	e.Comment = s.Comment
	e.Time = s.Time
	e.Locator = s.Locator
	e.Format = s.Format.String()
	e.Band = band.Name(s.FrequencyKHz)
	e.Cluster = cluster
}

// Contains reports whether the comment contains needle, ignoring case.
func (e *Env) Contains(needle string) bool {
	return strings.Contains(strings.ToLower(e.Comment), strings.ToLower(needle))
}

// Prefix reports whether the DX call starts with p, ignoring case.
func (e *Env) Prefix(p string) bool {
	return strings.HasPrefix(e.Call, strings.ToUpper(p))
}

var modes = map[string]string{
	"CW": "CW", "SSB": "SSB", "USB": "SSB", "LSB": "SSB", "AM": "AM", "FM": "FM",
	"FT8": "FT8", "FT4": "FT4", "RTTY": "RTTY", "PSK31": "PSK31", "PSK63": "PSK63",
	"BPSK": "PSK31", "BPSK31": "PSK31", "JT65": "JT65", "JT9": "JT9",
	"MSK144": "MSK144", "Q65": "Q65", "SSTV": "SSTV",
}

// Mode returns the first operating mode named in the comment, or "".
func (e *Env) Mode() string {
	for _, f := range strings.Fields(e.Comment) {
		if m, ok := modes[strings.ToUpper(f)]; ok {
			return m
		}
	}
	return ""
}

var (
	regexCache sync.Map
	regexCount int64
)

// Like matches s against a pattern where '*' is any run of characters.
// Without a '*' it is a case-insensitive substring test.
func (e *Env) Like(s, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return strings.Contains(strings.ToLower(s), strings.ToLower(pattern))
	}
	if v, ok := regexCache.Load(pattern); ok {
		return v.(*regexp.Regexp).MatchString(s)
	}
	quoted := regexp.QuoteMeta(pattern)
	re, err := regexp.Compile("(?i)^" + strings.ReplaceAll(quoted, `\*`, ".*") + "$")
	if err != nil {
		return false
	}
	if atomic.LoadInt64(&regexCount) < 1000 {
		regexCache.Store(pattern, re)
		atomic.AddInt64(&regexCount, 1)
	}
	return re.MatchString(s)
}

// Filter is a compiled expression. The zero Filter and a nil *Filter match
// everything.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile checks src against Env and requires a boolean result.
func Compile(src string) (*Filter, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(preprocessExpression(src), expr.Env(&Env{}), expr.AsBool())
	if err != nil {
		return nil, dxerr.NewExpressionError(src, err)
	}
	return &Filter{source: src, program: program}, nil
}

// MustCompile is Compile that panics, for tests and constants.
func MustCompile(src string) *Filter {
	f, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.source
}

// Eval runs the expression for a spot received from cluster.
func (f *Filter) Eval(cluster string, s spot.Spot) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	env := envPool.Get().(*Env)
	defer func() {
		*env = Env{}
		envPool.Put(env)
	}()
	env.fill(cluster, s)

	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", f.source, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Match is Eval with runtime errors treated as no match.
func (f *Filter) Match(cluster string, s spot.Spot) bool {
	ok, err := f.Eval(cluster, s)
	return err == nil && ok
}

// preprocessExpression maps the lowercase helper names onto Env methods.
func preprocessExpression(src string) string {
	for _, r := range aliases {
		src = r.re.ReplaceAllString(src, r.to)
	}
	return src
}

var aliases = []struct {
	re *regexp.Regexp
	to string
}{
	{regexp.MustCompile(`\bcontains\(`), "Contains("},
	{regexp.MustCompile(`\bprefix\(`), "Prefix("},
	{regexp.MustCompile(`\bmode\(`), "Mode("},
	{regexp.MustCompile(`\blike\(`), "Like("},
}

// Holder publishes the active filter to concurrent readers and lets it be
// swapped on reload.
type Holder struct {
	p atomic.Pointer[Filter]
}

// NewHolder starts with f.
func NewHolder(f *Filter) *Holder {
	h := &Holder{}
	h.Store(f)
	return h
}

func (h *Holder) Load() *Filter { return h.p.Load() }

func (h *Holder) Store(f *Filter) { h.p.Store(f) }
