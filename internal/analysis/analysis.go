// Package analysis implements pure, synchronous statistics over generic row
// sets. Data is handed in already resolved; nothing here touches the network,
// the database or the request cache.
package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const (
	ErrKindNoData          = "no_data"
	ErrKindMissingParams   = "missing_params"
	ErrKindUnknownAnalysis = "unknown_analysis"
)

type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Request selects the analysis to run and its knobs.
type Request struct {
	AnalysisType  string
	GroupBy       string
	ValueField    string
	SortDirection string
	Limit         int
}

// Result carries either annotated rows (ranking, comparison) or computed
// stats (aggregation, trends), or both.
type Result struct {
	Rows  []map[string]interface{} `json:"rows,omitempty"`
	Stats interface{}              `json:"stats,omitempty"`
}

type AggregationStats struct {
	Field  string      `json:"field"`
	Count  int         `json:"count"`
	Sum    float64     `json:"sum"`
	Mean   float64     `json:"mean"`
	Min    float64     `json:"min"`
	Max    float64     `json:"max"`
	Median float64     `json:"median"`
	Groups []GroupStat `json:"groups,omitempty"`
}

type GroupStat struct {
	Key   string  `json:"key"`
	Count int     `json:"count"`
	Sum   float64 `json:"sum"`
	Mean  float64 `json:"mean"`
}

type TrendStats struct {
	Field     string  `json:"field"`
	First     float64 `json:"first"`
	Last      float64 `json:"last"`
	Delta     float64 `json:"delta"`
	PctChange float64 `json:"pctChange"`
	Direction string  `json:"direction"`
}

type ComparisonStats struct {
	Field string  `json:"field"`
	Mean  float64 `json:"mean"`
	Count int     `json:"count"`
}

const defaultRankLimit = 10

// Run executes one analysis over the rows.
func Run(rows []map[string]interface{}, req Request) (*Result, *Error) {
	if len(rows) == 0 {
		return nil, &Error{Kind: ErrKindNoData, Message: "no rows to analyze"}
	}

	switch req.AnalysisType {
	case "aggregation":
		return aggregate(rows, req)
	case "ranking":
		return rank(rows, req)
	case "trends":
		return trends(rows, req)
	case "comparison":
		return compare(rows, req)
	default:
		return nil, &Error{Kind: ErrKindUnknownAnalysis, Message: fmt.Sprintf("unknown analysis type %q", req.AnalysisType)}
	}
}

func aggregate(rows []map[string]interface{}, req Request) (*Result, *Error) {
	field, err := targetField(rows, req.ValueField)
	if err != nil {
		return nil, err
	}

	values := collect(rows, field)
	if len(values) == 0 {
		return nil, &Error{Kind: ErrKindMissingParams, Message: fmt.Sprintf("no numeric values in field %q", field)}
	}

	stats := AggregationStats{
		Field: field,
		Count: len(rows),
		Sum:   sum(values),
		Min:   values[0],
		Max:   values[0],
	}
	for _, v := range values {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
	}
	stats.Mean = stats.Sum / float64(len(values))
	stats.Median = median(values)

	if req.GroupBy != "" {
		stats.Groups = groupStats(rows, req.GroupBy, field)
	}

	return &Result{Stats: stats}, nil
}

func groupStats(rows []map[string]interface{}, groupBy, field string) []GroupStat {
	byKey := make(map[string]*GroupStat)
	var order []string
	for _, row := range rows {
		key := fmt.Sprintf("%v", row[groupBy])
		g, ok := byKey[key]
		if !ok {
			g = &GroupStat{Key: key}
			byKey[key] = g
			order = append(order, key)
		}
		g.Count++
		if v, ok := numericValue(row[field]); ok {
			g.Sum += v
		}
	}
	sort.Strings(order)
	out := make([]GroupStat, 0, len(order))
	for _, key := range order {
		g := byKey[key]
		if g.Count > 0 {
			g.Mean = g.Sum / float64(g.Count)
		}
		out = append(out, *g)
	}
	return out
}

func rank(rows []map[string]interface{}, req Request) (*Result, *Error) {
	field, err := targetField(rows, req.ValueField)
	if err != nil {
		return nil, err
	}

	ascending := req.SortDirection == "asc"
	ranked := make([]map[string]interface{}, len(rows))
	copy(ranked, rows)

	// Stable sort; rows without a numeric value sink to the end either way.
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, oki := numericValue(ranked[i][field])
		vj, okj := numericValue(ranked[j][field])
		if !oki || !okj {
			return oki && !okj
		}
		if ascending {
			return vi < vj
		}
		return vi > vj
	})

	limit := req.Limit
	if limit <= 0 {
		limit = defaultRankLimit
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return &Result{Rows: ranked}, nil
}

func trends(rows []map[string]interface{}, req Request) (*Result, *Error) {
	field, err := targetField(rows, req.ValueField)
	if err != nil {
		return nil, err
	}

	values := collect(rows, field)
	if len(values) == 0 {
		return nil, &Error{Kind: ErrKindMissingParams, Message: fmt.Sprintf("no numeric values in field %q", field)}
	}

	first, last := values[0], values[len(values)-1]
	delta := last - first
	stats := TrendStats{
		Field: field,
		First: first,
		Last:  last,
		Delta: round2(delta),
	}
	if first != 0 {
		stats.PctChange = round2(delta / first * 100)
	}
	switch {
	case delta > 0:
		stats.Direction = "improving"
	case delta < 0:
		stats.Direction = "declining"
	default:
		stats.Direction = "stable"
	}

	return &Result{Stats: stats}, nil
}

func compare(rows []map[string]interface{}, req Request) (*Result, *Error) {
	field, err := targetField(rows, req.ValueField)
	if err != nil {
		return nil, err
	}

	values := collect(rows, field)
	if len(values) == 0 {
		return nil, &Error{Kind: ErrKindMissingParams, Message: fmt.Sprintf("no numeric values in field %q", field)}
	}
	mean := sum(values) / float64(len(values))

	annotated := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		cp := make(map[string]interface{}, len(row)+2)
		for k, v := range row {
			cp[k] = v
		}
		if v, ok := numericValue(row[field]); ok {
			cp["deviation"] = round2(v - mean)
			cp["atOrAboveMean"] = v >= mean
		}
		annotated = append(annotated, cp)
	}

	return &Result{
		Rows:  annotated,
		Stats: ComparisonStats{Field: field, Mean: round2(mean), Count: len(values)},
	}, nil
}

// targetField picks the numeric field to operate on: the explicit request, or
// the first numeric field of the first row (keys scanned in sorted order so
// detection is deterministic).
func targetField(rows []map[string]interface{}, explicit string) (string, *Error) {
	if explicit != "" {
		return explicit, nil
	}
	keys := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := numericValue(rows[0][k]); ok {
			return k, nil
		}
	}
	return "", &Error{Kind: ErrKindMissingParams, Message: "no numeric field found and valueField not given"}
}

func collect(rows []map[string]interface{}, field string) []float64 {
	var out []float64
	for _, row := range rows {
		if v, ok := numericValue(row[field]); ok {
			out = append(out, v)
		}
	}
	return out
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

// median sorts ascending; an even-length input averages the two middle values.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
