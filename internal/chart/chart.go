// Package chart shapes row sets into renderable chart descriptions. Like the
// analysis engine it is pure: data resolution happens against an
// already-snapshotted view of the turn's cached datasets.
package chart

import (
	"fmt"
	"sort"
)

const (
	ErrKindNoData        = "no_data"
	ErrKindMissingParams = "missing_params"
)

type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Spec is the renderable chart description returned to the caller.
type Spec struct {
	ChartType string                   `json:"chartType"`
	Data      []map[string]interface{} `json:"data"`
	XKey      string                   `json:"xKey"`
	YKeys     []string                 `json:"yKeys"`
	Title     string                   `json:"title,omitempty"`
	Colors    []string                 `json:"colors,omitempty"`
}

type Request struct {
	ChartType string
	Data      []map[string]interface{}
	DataRef   string
	XKey      string
	YKeys     []string
	Title     string
	Colors    []string
}

var validChartTypes = map[string]bool{"Line": true, "Bar": true, "Pie": true}

var defaultPalette = []string{
	"#2563eb", "#16a34a", "#f59e0b", "#dc2626", "#7c3aed", "#0891b2",
}

// Build resolves the row source (inline data, then the named cache entry,
// then auto-detection over all cached datasets) and produces the spec.
func Build(req Request, datasets map[string][]map[string]interface{}) (*Spec, *Error) {
	if !validChartTypes[req.ChartType] {
		return nil, &Error{Kind: ErrKindMissingParams, Message: fmt.Sprintf("chartType must be Line, Bar or Pie, got %q", req.ChartType)}
	}
	if req.XKey == "" || len(req.YKeys) == 0 {
		return nil, &Error{Kind: ErrKindMissingParams, Message: "xKey and yKeys are required"}
	}

	rows, err := resolveRows(req, datasets)
	if err != nil {
		return nil, err
	}

	colors := req.Colors
	if len(colors) == 0 {
		colors = make([]string, len(req.YKeys))
		for i := range req.YKeys {
			colors[i] = defaultPalette[i%len(defaultPalette)]
		}
	}

	return &Spec{
		ChartType: req.ChartType,
		Data:      rows,
		XKey:      req.XKey,
		YKeys:     req.YKeys,
		Title:     req.Title,
		Colors:    colors,
	}, nil
}

func resolveRows(req Request, datasets map[string][]map[string]interface{}) ([]map[string]interface{}, *Error) {
	if len(req.Data) > 0 {
		return req.Data, nil
	}
	if req.DataRef != "" {
		if rows, ok := datasets[req.DataRef]; ok && len(rows) > 0 {
			return rows, nil
		}
		return nil, &Error{Kind: ErrKindNoData, Message: fmt.Sprintf("no cached dataset for %q; run queryDatabase first", req.DataRef)}
	}

	// Auto-detect: any cached dataset whose fields cover the requested axes.
	// Names scanned in sorted order so the pick is deterministic.
	names := make([]string, 0, len(datasets))
	for name := range datasets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows := datasets[name]
		if len(rows) > 0 && hasFields(rows[0], req.XKey, req.YKeys) {
			return rows, nil
		}
	}

	return nil, &Error{Kind: ErrKindNoData, Message: "no data supplied and no cached dataset matches the requested axes"}
}

func hasFields(row map[string]interface{}, xKey string, yKeys []string) bool {
	if _, ok := row[xKey]; !ok {
		return false
	}
	for _, y := range yKeys {
		if _, ok := row[y]; !ok {
			return false
		}
	}
	return true
}
