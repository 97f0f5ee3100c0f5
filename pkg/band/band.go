// Package band maps frequencies to amateur radio band names.
//
// It is kept outside the spot parser on purpose: the band plan changes over
// time and per region, while a parsed spot only records what the server sent.
package band

import "sort"

// Band is one amateur allocation, edges in kHz inclusive.
type Band struct {
	Name    string
	LowKHz  float64
	HighKHz float64
}

// Plan is the union of the IARU region allocations, sorted by frequency.
var Plan = []Band{
	{"2200m", 135.7, 137.8},
	{"630m", 472, 479},
	{"160m", 1800, 2000},
	{"80m", 3500, 4000},
	{"60m", 5250, 5450},
	{"40m", 7000, 7300},
	{"30m", 10100, 10150},
	{"20m", 14000, 14350},
	{"17m", 18068, 18168},
	{"15m", 21000, 21450},
	{"12m", 24890, 24990},
	{"10m", 28000, 29700},
	{"6m", 50000, 54000},
	{"4m", 70000, 70500},
	{"2m", 144000, 148000},
	{"1.25m", 222000, 225000},
	{"70cm", 420000, 450000},
	{"23cm", 1240000, 1300000},
}

// Of returns the band name for freqKHz, or false outside every allocation.
func Of(freqKHz float64) (string, bool) {
	i := sort.Search(len(Plan), func(i int) bool { return Plan[i].HighKHz >= freqKHz })
	if i < len(Plan) && freqKHz >= Plan[i].LowKHz {
		return Plan[i].Name, true
	}
	return "", false
}

// Name is Of without the flag; unknown frequencies map to "".
func Name(freqKHz float64) string {
	name, _ := Of(freqKHz)
	return name
}
