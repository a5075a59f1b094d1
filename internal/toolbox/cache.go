package toolbox

// RequestCache memoizes array-shaped query results for the duration of one
// orchestrator turn, so analysis and chart calls can reuse data the model
// already asked for instead of re-querying. It is turn-local by construction:
// never shared across sessions or turns, never persisted, and therefore
// needs no synchronization.
type RequestCache struct {
	datasets map[string][]map[string]interface{}
}

func NewRequestCache() *RequestCache {
	return &RequestCache{datasets: make(map[string][]map[string]interface{})}
}

func (c *RequestCache) Put(queryType string, rows []map[string]interface{}) {
	c.datasets[queryType] = rows
}

func (c *RequestCache) Get(queryType string) ([]map[string]interface{}, bool) {
	rows, ok := c.datasets[queryType]
	return rows, ok
}

// Datasets returns a shallow snapshot of all cached datasets, keyed by query
// type, for read-only consumers like the chart builder's auto-detection.
func (c *RequestCache) Datasets() map[string][]map[string]interface{} {
	out := make(map[string][]map[string]interface{}, len(c.datasets))
	for k, v := range c.datasets {
		out[k] = v
	}
	return out
}
