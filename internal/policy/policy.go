// Package policy turns an item description and the caller's prohibited and
// restricted flags into countries to avoid and countries to penalize.
package policy

import (
	"fmt"

	"globalroute/internal/classifier"
)

// ProhibitedFlag says what to do with countries that prohibit the item.
type ProhibitedFlag string

const (
	ProhibitedIgnore ProhibitedFlag = "ignore"
	ProhibitedAvoid  ProhibitedFlag = "avoid"
)

// RestrictedFlag says what to do with countries that restrict the item.
type RestrictedFlag string

const (
	RestrictedIgnore  RestrictedFlag = "ignore"
	RestrictedAvoid   RestrictedFlag = "avoid"
	RestrictedPenalty RestrictedFlag = "penalty"
)

// ParseProhibitedFlag parses a flag; empty means ignore.
func ParseProhibitedFlag(s string) (ProhibitedFlag, error) {
	switch f := ProhibitedFlag(s); f {
	case "":
		return ProhibitedIgnore, nil
	case ProhibitedIgnore, ProhibitedAvoid:
		return f, nil
	}
	return "", fmt.Errorf("prohibited_flag must be one of ignore, avoid (got %q)", s)
}

// ParseRestrictedFlag parses a flag; empty means ignore.
func ParseRestrictedFlag(s string) (RestrictedFlag, error) {
	switch f := RestrictedFlag(s); f {
	case "":
		return RestrictedIgnore, nil
	case RestrictedIgnore, RestrictedAvoid, RestrictedPenalty:
		return f, nil
	}
	return "", fmt.Errorf("restricted_flag must be one of ignore, avoid, penalty (got %q)", s)
}

// Lists selects which classifier lists feed a policy field.
type Lists uint8

const (
	None Lists = iota
	Prohibited
	Restricted
	Both
)

// Rule is one row of the policy table.
type Rule struct {
	Avoid   Lists
	Penalty Lists
}

// Table is the complete flag combination table.
var Table = map[ProhibitedFlag]map[RestrictedFlag]Rule{
	ProhibitedIgnore: {
		RestrictedIgnore:  {},
		RestrictedPenalty: {Penalty: Restricted},
		RestrictedAvoid:   {Avoid: Restricted},
	},
	ProhibitedAvoid: {
		RestrictedIgnore:  {Avoid: Prohibited},
		RestrictedPenalty: {Avoid: Prohibited, Penalty: Restricted},
		RestrictedAvoid:   {Avoid: Both},
	},
}

// Lookup returns the rule for a flag pair. Unknown flags behave as ignore.
func Lookup(pf ProhibitedFlag, rf RestrictedFlag) Rule { return Table[pf][rf] }

// NeedsClassifier reports whether the rule reads any classifier list.
func (r Rule) NeedsClassifier() bool { return r.Avoid != None || r.Penalty != None }

// Policy is the resolved set of country codes. Both slices are non-nil.
type Policy struct {
	Avoid   []string `json:"avoid_countries"`
	Penalty []string `json:"penalty_countries"`
}

// Empty returns a policy with no countries.
func Empty() Policy { return Policy{Avoid: []string{}, Penalty: []string{}} }

// Combine applies a rule to classifier output.
func Combine(r Rule, res classifier.Result) Policy {
	return Policy{
		Avoid:   pick(r.Avoid, res),
		Penalty: pick(r.Penalty, res),
	}
}

func pick(l Lists, res classifier.Result) []string {
	switch l {
	case Prohibited:
		return classifier.Codes(res.Prohibited)
	case Restricted:
		return classifier.Codes(res.Restricted)
	case Both:
		all := make([]string, 0, len(res.Prohibited)+len(res.Restricted))
		all = append(all, res.Prohibited...)
		all = append(all, res.Restricted...)
		return classifier.Codes(all)
	}
	return []string{}
}
