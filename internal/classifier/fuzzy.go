package classifier

import (
	"github.com/adrg/strutil/metrics"
)

// indel is a Levenshtein metric where a substitution costs an insertion plus
// a deletion, so Distance is the indel distance len(a)+len(b)-2*LCS.
var indel = &metrics.Levenshtein{CaseSensitive: true, InsertCost: 1, DeleteCost: 1, ReplaceCost: 2}

// PartialRatio scores how well the shorter string matches its best aligned
// window of the longer one, from 0 to 100. Windows are every slice of the
// longer string as long as the shorter one, plus the shorter prefixes and
// suffixes that overhang its ends. The window score is the normalized indel
// similarity.
func PartialRatio(a, b string) float64 {
	s, l := []rune(a), []rune(b)
	if len(s) > len(l) {
		s, l = l, s
	}
	if len(s) == 0 {
		return 0
	}
	short := string(s)
	best := 0.0
	score := func(w []rune) bool {
		if r := ratio(short, len(s), w); r > best {
			best = r
		}
		return best == 100
	}
	for i := 0; i+len(s) <= len(l); i++ {
		if score(l[i : i+len(s)]) {
			return best
		}
	}
	for n := 1; n < len(s); n++ {
		if score(l[:n]) || score(l[len(l)-n:]) {
			return best
		}
	}
	return best
}

func ratio(a string, la int, b []rune) float64 {
	total := la + len(b)
	if total == 0 {
		return 100
	}
	d := indel.Distance(a, string(b))
	return 100 * (1 - float64(d)/float64(total))
}
