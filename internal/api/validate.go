package api

import (
	"fmt"
	"math"
	"strings"

	"globalroute/internal/graph"
	"globalroute/internal/model"
	"globalroute/internal/policy"
	"globalroute/internal/search"
)

// Accepted deviation of time_weight+price_weight from 1.
const weightTolerance = 0.01

// ValidationError is a request the service refuses to run. It maps to 400.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// findParams is a validated find-paths request.
type findParams struct {
	query       search.Query
	avoid       []string
	prohibited  policy.ProhibitedFlag
	restricted  policy.RestrictedFlag
	description string
}

func validateFindPaths(req *model.FindPathsRequest) (findParams, error) {
	var p findParams
	start, goal := strings.TrimSpace(req.Start), strings.TrimSpace(req.Goal)
	if start == "" {
		return p, invalid("start", "is required")
	}
	if goal == "" {
		return p, invalid("goal", "is required")
	}
	if req.Description == nil {
		return p, invalid("description", "is required")
	}

	topN := model.DefaultTopN
	if req.TopN != nil {
		if *req.TopN <= 0 {
			return p, invalid("top_n", "must be greater than 0")
		}
		topN = *req.TopN
	}

	tw, pw := model.DefaultTimeWeight, model.DefaultPriceWeight
	if req.TimeWeight != nil {
		tw = *req.TimeWeight
	}
	if req.PriceWeight != nil {
		pw = *req.PriceWeight
	}
	if err := unitWeight("time_weight", tw); err != nil {
		return p, err
	}
	if err := unitWeight("price_weight", pw); err != nil {
		return p, err
	}
	if sum := tw + pw; sum < 1-weightTolerance || sum > 1+weightTolerance {
		return p, invalid("", "time_weight and price_weight must sum to 1")
	}

	names := req.AllowedModes
	if names == nil {
		names = model.DefaultModes
	}
	if len(names) == 0 {
		return p, invalid("allowed_modes", "must not be empty")
	}
	modes := make([]graph.Mode, 0, len(names))
	for _, n := range names {
		m, err := graph.ParseMode(n)
		if err != nil {
			return p, invalid("allowed_modes", "%v", err)
		}
		modes = append(modes, m)
	}

	pf, err := policy.ParseProhibitedFlag(req.ProhibitedFlag)
	if err != nil {
		return p, invalid("", "%v", err)
	}
	rf, err := policy.ParseRestrictedFlag(req.RestrictedFlag)
	if err != nil {
		return p, invalid("", "%v", err)
	}

	p.query = search.Query{
		Start:       start,
		Goal:        goal,
		TopN:        topN,
		TimeWeight:  tw,
		PriceWeight: pw,
		Modes:       graph.NewModeSet(modes...),
	}
	p.avoid = req.AvoidCountries
	p.prohibited, p.restricted = pf, rf
	p.description = *req.Description
	return p, nil
}

func unitWeight(field string, w float64) error {
	if math.IsNaN(w) || w < 0 || w > 1 {
		return invalid(field, "must be within [0, 1]")
	}
	return nil
}
