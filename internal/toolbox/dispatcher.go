package toolbox

import (
	"context"
	"errors"
	"log"

	"compliance-copilot/internal/analysis"
	"compliance-copilot/internal/chart"
	"compliance-copilot/internal/compliance"
)

// Kind is the closed set of tools the dispatcher routes. Keeping it an enum
// (instead of switching on the raw string everywhere) gives one exhaustive
// dispatch point and one place where an unknown name can fall through.
type Kind int

const (
	KindQueryDatabase Kind = iota
	KindAnalyzeDataset
	KindGenerateChartSpec
	KindManageIntegration
)

// KindOf maps a tool-call name to its kind.
func KindOf(name string) (Kind, bool) {
	switch name {
	case "queryDatabase":
		return KindQueryDatabase, true
	case "analyzeDataset":
		return KindAnalyzeDataset, true
	case "generateChartSpec":
		return KindGenerateChartSpec, true
	case "manageIntegrationStatus":
		return KindManageIntegration, true
	default:
		return 0, false
	}
}

// Dispatcher routes tool calls to their handlers and normalizes every
// outcome, including panics, into a Result envelope.
type Dispatcher struct {
	queries *compliance.Service
}

func NewDispatcher(queries *compliance.Service) *Dispatcher {
	return &Dispatcher{queries: queries}
}

// Dispatch executes one tool call. It never returns an error or panics: any
// handler failure becomes an error envelope the model can react to.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}, cache *RequestCache) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️ tool %s panicked: %v", name, r)
			res = Errorf(ErrKindExecutionException, "tool %s failed: %v", name, r)
		}
	}()

	kind, ok := KindOf(name)
	if !ok {
		return Errorf(ErrKindUnknownTool, "unknown tool %q", name)
	}

	switch kind {
	case KindQueryDatabase:
		return d.handleQuery(ctx, args, cache)
	case KindAnalyzeDataset:
		return d.handleAnalyze(args, cache)
	case KindGenerateChartSpec:
		return d.handleChart(args, cache)
	case KindManageIntegration:
		return d.handleManage(ctx, args)
	}
	return Errorf(ErrKindUnknownTool, "unknown tool %q", name)
}

func (d *Dispatcher) handleQuery(ctx context.Context, args map[string]interface{}, cache *RequestCache) Result {
	queryType, _ := args["queryType"].(string)
	if queryType == "" {
		return Errorf(compliance.ErrKindMissingParams, "queryType is required")
	}
	params, _ := args["params"].(map[string]interface{})

	result, err := d.queries.Run(ctx, queryType, compliance.ParamsFromMap(params))
	if err != nil {
		var qe *compliance.QueryError
		if errors.As(err, &qe) {
			return Errorf(qe.Kind, "%s", qe.Message)
		}
		return Errorf(ErrKindExecutionException, "query %s failed: %v", queryType, err)
	}

	// Array-shaped results are memoized under the identifier the model asked
	// for, so later analysis/chart calls this turn can skip the database.
	if result.Rows != nil {
		cache.Put(queryType, result.Rows)
	}
	return Success(result.Data)
}

func (d *Dispatcher) handleAnalyze(args map[string]interface{}, cache *RequestCache) Result {
	rows, errRes := resolveDataset(args, cache)
	if errRes != nil {
		return *errRes
	}

	req := analysis.Request{
		AnalysisType:  stringArg(args, "analysisType"),
		GroupBy:       stringArg(args, "groupBy"),
		ValueField:    stringArg(args, "valueField"),
		SortDirection: stringArg(args, "sortDirection"),
		Limit:         intArg(args, "limit"),
	}

	result, aerr := analysis.Run(rows, req)
	if aerr != nil {
		return Errorf(aerr.Kind, "%s", aerr.Message)
	}
	return Result{Status: StatusSuccess, Data: result.Rows, Stats: result.Stats}
}

func (d *Dispatcher) handleChart(args map[string]interface{}, cache *RequestCache) Result {
	req := chart.Request{
		ChartType: stringArg(args, "chartType"),
		Data:      inlineRows(args["data"]),
		DataRef:   stringArg(args, "dataRef"),
		XKey:      stringArg(args, "xKey"),
		YKeys:     stringsArg(args, "yKeys"),
		Title:     stringArg(args, "title"),
		Colors:    stringsArg(args, "colors"),
	}

	spec, cerr := chart.Build(req, cache.Datasets())
	if cerr != nil {
		return Errorf(cerr.Kind, "%s", cerr.Message)
	}
	return Result{Status: StatusSuccess, ChartSpec: spec}
}

func (d *Dispatcher) handleManage(ctx context.Context, args map[string]interface{}) Result {
	change, err := d.queries.SetIntegrationStatus(ctx,
		stringArg(args, "action"),
		stringArg(args, "integrationId"),
		stringArg(args, "integrationName"))
	if err != nil {
		var qe *compliance.QueryError
		if errors.As(err, &qe) {
			return Errorf(qe.Kind, "%s", qe.Message)
		}
		return Errorf(ErrKindExecutionException, "integration update failed: %v", err)
	}
	return Success(change)
}

// resolveDataset picks the analysis input: inline rows first, then a cached
// dataset by reference. Neither present is a no_data error.
func resolveDataset(args map[string]interface{}, cache *RequestCache) ([]map[string]interface{}, *Result) {
	if rows := inlineRows(args["data"]); len(rows) > 0 {
		return rows, nil
	}
	if ref := stringArg(args, "dataRef"); ref != "" {
		if rows, ok := cache.Get(ref); ok && len(rows) > 0 {
			return rows, nil
		}
		res := Errorf(compliance.ErrKindNoData, "no cached dataset for %q; run queryDatabase first", ref)
		return nil, &res
	}
	res := Errorf(compliance.ErrKindNoData, "no data supplied: pass inline rows or a dataRef")
	return nil, &res
}

func inlineRows(v interface{}) []map[string]interface{} {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var rows []map[string]interface{}
	for _, item := range items {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func stringsArg(args map[string]interface{}, key string) []string {
	items, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intArg(args map[string]interface{}, key string) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
