package model

// Wire types of the route API.

// FindPathsRequest is the body of POST /find_paths/. Pointer fields
// distinguish "absent" (default applies) from an explicit zero.
type FindPathsRequest struct {
	Start          string   `json:"start"`
	Goal           string   `json:"goal"`
	AvoidCountries []string `json:"avoid_countries,omitempty"`
	TopN           *int     `json:"top_n,omitempty"`
	TimeWeight     *float64 `json:"time_weight,omitempty"`
	PriceWeight    *float64 `json:"price_weight,omitempty"`
	AllowedModes   []string `json:"allowed_modes,omitempty"`
	ProhibitedFlag string   `json:"prohibited_flag,omitempty"`
	RestrictedFlag string   `json:"restricted_flag,omitempty"`
	Description    *string  `json:"description"`
}

// Request defaults.
const (
	DefaultTopN           = 3
	DefaultTimeWeight     = 0.5
	DefaultPriceWeight    = 0.5
	DefaultProhibitedFlag = "ignore"
	DefaultRestrictedFlag = "ignore"
)

// DefaultModes is used when allowed_modes is omitted.
var DefaultModes = []string{"land", "sea", "air"}

// FindPathsResponse is the success body. Paths holds either []PathResult or
// an ErrorResult when the search reported a domain outcome.
type FindPathsResponse struct {
	AvoidedCountries []string `json:"avoided_countries"`
	PenaltyCountries []string `json:"penalty_countries"`
	Paths            any      `json:"paths"`
}

// ErrorResult carries a domain outcome such as "no path found".
type ErrorResult struct {
	Error string `json:"error"`
}

// PathResult is one ranked route.
type PathResult struct {
	Path        []string     `json:"path"`
	Coordinates []Coordinate `json:"coordinates"`
	Edges       []Edge       `json:"edges"`
	TimeSum     float64      `json:"time_sum"`
	PriceSum    float64      `json:"price_sum"`
	DistanceSum float64      `json:"distance_sum"`
	CO2Sum      float64      `json:"CO2_sum"`
}

// Coordinate locates one node of a path.
type Coordinate struct {
	Node      string  `json:"node"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Edge is one traversed link, oriented along the path.
type Edge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Mode     string  `json:"mode"`
	Time     float64 `json:"time"`
	Price    float64 `json:"price"`
	Distance float64 `json:"distance"`
}

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
