package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"domain": "Access Control", "score": 72.0},
		{"domain": "Encryption", "score": 88.0},
	}
}

func TestBuildFromInlineData(t *testing.T) {
	spec, err := Build(Request{
		ChartType: "Bar",
		Data:      sampleRows(),
		XKey:      "domain",
		YKeys:     []string{"score"},
		Title:     "Scores by domain",
	}, nil)
	require.Nil(t, err)
	assert.Equal(t, "Bar", spec.ChartType)
	assert.Equal(t, "domain", spec.XKey)
	assert.Len(t, spec.Data, 2)
	assert.Equal(t, "Scores by domain", spec.Title)
}

func TestBuildFromDataRef(t *testing.T) {
	datasets := map[string][]map[string]interface{}{
		"compliance_by_domain": sampleRows(),
	}
	spec, err := Build(Request{
		ChartType: "Pie",
		DataRef:   "compliance_by_domain",
		XKey:      "domain",
		YKeys:     []string{"score"},
	}, datasets)
	require.Nil(t, err)
	assert.Len(t, spec.Data, 2)
}

func TestBuildAutoDetectsDataset(t *testing.T) {
	datasets := map[string][]map[string]interface{}{
		"integrations_list":    {{"name": "Jira", "active": true}},
		"compliance_by_domain": sampleRows(),
	}
	spec, err := Build(Request{
		ChartType: "Line",
		XKey:      "domain",
		YKeys:     []string{"score"},
	}, datasets)
	require.Nil(t, err)
	assert.Equal(t, sampleRows(), spec.Data)
}

func TestDefaultPaletteSizedToYKeys(t *testing.T) {
	spec, err := Build(Request{
		ChartType: "Line",
		Data:      []map[string]interface{}{{"x": 1, "a": 2, "b": 3}},
		XKey:      "x",
		YKeys:     []string{"a", "b"},
	}, nil)
	require.Nil(t, err)
	assert.Len(t, spec.Colors, 2)
	assert.NotEqual(t, spec.Colors[0], spec.Colors[1])
}

func TestExplicitColorsKept(t *testing.T) {
	colors := []string{"#000000"}
	spec, err := Build(Request{
		ChartType: "Bar",
		Data:      sampleRows(),
		XKey:      "domain",
		YKeys:     []string{"score"},
		Colors:    colors,
	}, nil)
	require.Nil(t, err)
	assert.Equal(t, colors, spec.Colors)
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(Request{ChartType: "Scatter", XKey: "x", YKeys: []string{"y"}}, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrKindMissingParams, err.Kind)

	_, err = Build(Request{ChartType: "Bar", YKeys: []string{"y"}}, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrKindMissingParams, err.Kind)

	_, err = Build(Request{ChartType: "Bar", DataRef: "never_fetched", XKey: "x", YKeys: []string{"y"}}, nil)
	require.NotNil(t, err)
	assert.Equal(t, ErrKindNoData, err.Kind)

	_, err = Build(Request{ChartType: "Bar", XKey: "x", YKeys: []string{"y"}}, map[string][]map[string]interface{}{
		"something": {{"other": 1}},
	})
	require.NotNil(t, err)
	assert.Equal(t, ErrKindNoData, err.Kind)
}
