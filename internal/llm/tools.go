package llm

type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// QueryTypes lists the named read queries exposed to the model. The list is
// duplicated into the queryDatabase schema enum so the model can only ask for
// queries the catalog actually resolves.
var QueryTypes = []string{
	"overview_kpis",
	"compliance_by_domain",
	"applications_list",
	"application_detail",
	"application_controls",
	"failing_controls",
	"control_detail",
	"frameworks_list",
	"framework_coverage",
	"integrations_list",
	"score_trend",
	"top_risk_applications",
}

// GetAssistantTools returns the tool schema handed to the completion service
// on every turn.
func GetAssistantTools() []Tool {
	return []Tool{
		{
			Type: "function",
			Function: Function{
				Name:        "queryDatabase",
				Description: "Runs one of the named read-only compliance queries and returns its rows or summary object. Use this before analyzing or charting anything.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"queryType": map[string]interface{}{
							"type":        "string",
							"description": "Which named query to run",
							"enum":        QueryTypes,
						},
						"params": map[string]interface{}{
							"type":        "object",
							"description": "Optional query parameters",
							"properties": map[string]interface{}{
								"domain": map[string]interface{}{
									"type":        "string",
									"description": "Control domain filter, e.g. 'Access Control'",
								},
								"applicationName": map[string]interface{}{
									"type":        "string",
									"description": "Application name, exact or partial (case-insensitive)",
								},
								"applicationId": map[string]interface{}{
									"type":        "string",
									"description": "Exact application identifier",
								},
								"controlCode": map[string]interface{}{
									"type":        "string",
									"description": "Control code within the master framework, e.g. 'AC-2'",
								},
								"controlId": map[string]interface{}{
									"type":        "string",
									"description": "Exact control identifier",
								},
								"limit": map[string]interface{}{
									"type":        "integer",
									"description": "Maximum number of rows to return",
								},
							},
						},
					},
					"required": []string{"queryType"},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name:        "analyzeDataset",
				Description: "Runs a statistical analysis (aggregation, ranking, trends or comparison) over a dataset. Pass inline rows via 'data', or reference a query already run this turn via 'dataRef'.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"data": map[string]interface{}{
							"type":        "array",
							"description": "Inline rows to analyze (array of objects)",
							"items":       map[string]interface{}{"type": "object"},
						},
						"dataRef": map[string]interface{}{
							"type":        "string",
							"description": "queryType of a dataset fetched earlier this turn",
							"enum":        QueryTypes,
						},
						"analysisType": map[string]interface{}{
							"type":        "string",
							"description": "Kind of analysis to run",
							"enum":        []string{"aggregation", "ranking", "trends", "comparison"},
						},
						"groupBy": map[string]interface{}{
							"type":        "string",
							"description": "Field to group aggregation results by (optional)",
						},
						"valueField": map[string]interface{}{
							"type":        "string",
							"description": "Numeric field to operate on; auto-detected when omitted",
						},
						"sortDirection": map[string]interface{}{
							"type":        "string",
							"description": "Ranking order",
							"enum":        []string{"desc", "asc"},
						},
						"limit": map[string]interface{}{
							"type":        "integer",
							"description": "Maximum number of ranked rows to return (default 10)",
						},
					},
					"required": []string{"analysisType"},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name:        "generateChartSpec",
				Description: "Builds a renderable chart description from a dataset. Pass inline rows via 'data', reference a query via 'dataRef', or omit both to auto-match against data fetched this turn.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"chartType": map[string]interface{}{
							"type":        "string",
							"description": "Chart family to render",
							"enum":        []string{"Line", "Bar", "Pie"},
						},
						"data": map[string]interface{}{
							"type":        "array",
							"description": "Inline rows to chart (array of objects)",
							"items":       map[string]interface{}{"type": "object"},
						},
						"dataRef": map[string]interface{}{
							"type":        "string",
							"description": "queryType of a dataset fetched earlier this turn",
							"enum":        QueryTypes,
						},
						"xKey": map[string]interface{}{
							"type":        "string",
							"description": "Field used for the x axis / pie labels",
						},
						"yKeys": map[string]interface{}{
							"type":        "array",
							"description": "Ordered numeric fields plotted as series",
							"items":       map[string]interface{}{"type": "string"},
						},
						"title": map[string]interface{}{
							"type":        "string",
							"description": "Chart title (optional)",
						},
						"colors": map[string]interface{}{
							"type":        "array",
							"description": "Series colors; a default palette is used when omitted",
							"items":       map[string]interface{}{"type": "string"},
						},
					},
					"required": []string{"chartType", "xKey", "yKeys"},
				},
			},
		},
		{
			Type: "function",
			Function: Function{
				Name:        "manageIntegrationStatus",
				Description: "Activates or deactivates a data-source integration. Only call this after the user has explicitly confirmed the change in the conversation.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"action": map[string]interface{}{
							"type":        "string",
							"description": "Desired state transition",
							"enum":        []string{"activate", "deactivate"},
						},
						"integrationId": map[string]interface{}{
							"type":        "string",
							"description": "Exact integration identifier",
						},
						"integrationName": map[string]interface{}{
							"type":        "string",
							"description": "Integration name, exact or partial (case-insensitive)",
						},
					},
					"required": []string{"action"},
				},
			},
		},
	}
}
