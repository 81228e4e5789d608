// Package region maps named regional batches to state FIPS codes.
package region

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// StateFIPS maps state abbreviation to 2-digit FIPS code for all 50 states + DC.
var StateFIPS = map[string]string{
	"AL": "01", "AK": "02", "AZ": "04", "AR": "05", "CA": "06",
	"CO": "08", "CT": "09", "DE": "10", "DC": "11", "FL": "12",
	"GA": "13", "HI": "15", "ID": "16", "IL": "17", "IN": "18",
	"IA": "19", "KS": "20", "KY": "21", "LA": "22", "ME": "23",
	"MD": "24", "MA": "25", "MI": "26", "MN": "27", "MS": "28",
	"MO": "29", "MT": "30", "NE": "31", "NV": "32", "NH": "33",
	"NJ": "34", "NM": "35", "NY": "36", "NC": "37", "ND": "38",
	"OH": "39", "OK": "40", "OR": "41", "PA": "42", "RI": "44",
	"SC": "45", "SD": "46", "TN": "47", "TX": "48", "UT": "49",
	"VT": "50", "VA": "51", "WA": "53", "WV": "54", "WI": "55",
	"WY": "56",
}

var abbrByFIPS map[string]string

func init() {
	abbrByFIPS = make(map[string]string, len(StateFIPS))
	for abbr, fips := range StateFIPS {
		abbrByFIPS[fips] = abbr
	}
}

// AbbrFromFIPS returns the state abbreviation for a FIPS code.
func AbbrFromFIPS(fips string) (string, bool) {
	abbr, ok := abbrByFIPS[fips]
	return abbr, ok
}

// builtin regions overlap on purpose: the east and south batches share the
// mid-Atlantic states.
var builtin = map[string][]string{
	"south":     {"10", "12", "13", "24", "37", "45", "51", "11", "54", "01", "21", "28", "47", "05", "22", "40", "48"},
	"east":      {"09", "23", "25", "33", "44", "50", "34", "36", "42", "10", "24", "51", "37", "45", "13", "12"},
	"west":      {"04", "08", "16", "30", "32", "35", "49", "56", "02", "06", "15", "41", "53"},
	"midwest":   {"17", "18", "26", "39", "55", "19", "20", "27", "29", "31", "38", "46"},
	"northeast": {"09", "23", "25", "33", "44", "50", "34", "36", "42"},
}

// Region is a named batch of states.
type Region struct {
	Name   string
	States []string // sorted state FIPS codes
}

// Names lists the built-in and configured region names, sorted.
func Names(custom map[string][]string) []string {
	set := make(map[string]bool, len(builtin)+len(custom))
	for name := range builtin {
		set[name] = true
	}
	for name := range custom {
		set[strings.ToLower(name)] = true
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup resolves a region by name. Configured regions take precedence over
// the built-in ones.
func Lookup(name string, custom map[string][]string) (Region, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	states, ok := findCustom(key, custom)
	if !ok {
		states, ok = builtin[key]
	}
	if !ok {
		return Region{}, eris.Errorf("region: unknown region %q (known: %s)", name, strings.Join(Names(custom), ", "))
	}
	fips, err := ParseStates(states)
	if err != nil {
		return Region{}, eris.Wrapf(err, "region: %s", key)
	}
	if len(fips) == 0 {
		return Region{}, eris.Errorf("region: %s has no states", key)
	}
	return Region{Name: key, States: fips}, nil
}

// viper lowercases map keys, but callers may build the map themselves.
func findCustom(key string, custom map[string][]string) ([]string, bool) {
	if s, ok := custom[key]; ok {
		return s, true
	}
	for name, s := range custom {
		if strings.EqualFold(name, key) {
			return s, true
		}
	}
	return nil, false
}

// LookupAll resolves several names, preserving order and dropping repeats.
func LookupAll(names []string, custom map[string][]string) ([]Region, error) {
	var out []Region
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		r, err := Lookup(n, custom)
		if err != nil {
			return nil, err
		}
		if seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		out = append(out, r)
	}
	return out, nil
}

// ParseStates normalises state identifiers (2-digit FIPS or postal
// abbreviations) to a sorted, de-duplicated FIPS list.
func ParseStates(states []string) ([]string, error) {
	set := make(map[string]bool, len(states))
	for _, s := range states {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if fips, ok := StateFIPS[strings.ToUpper(s)]; ok {
			set[fips] = true
			continue
		}
		if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
			s = "0" + s
		}
		if _, ok := abbrByFIPS[s]; !ok {
			return nil, eris.Errorf("region: unknown state %q", s)
		}
		set[s] = true
	}
	out := make([]string, 0, len(set))
	for fips := range set {
		out = append(out, fips)
	}
	sort.Strings(out)
	return out, nil
}
