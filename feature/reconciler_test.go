package feature

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/creditiq/core"
)

func TestReconcile(t *testing.T) {
	schema := core.MustFeatureSchema("D_1", "S_1", "P_2")

	tests := []struct {
		name  string
		input core.ClientFeatureMap
		want  core.FeatureVector
	}{
		{"empty input", core.ClientFeatureMap{}, core.FeatureVector{0, 0, 0}},
		{"nil input", nil, core.FeatureVector{0, 0, 0}},
		{"partial", core.ClientFeatureMap{"D_1": 0.5}, core.FeatureVector{0.5, 0, 0}},
		{"numeric string", core.ClientFeatureMap{"S_1": " 1.25 ", "P_2": "3"}, core.FeatureVector{0, 1.25, 3}},
		{"json number", core.ClientFeatureMap{"P_2": json.Number("0.7")}, core.FeatureVector{0, 0, 0.7}},
		{"bool", core.ClientFeatureMap{"D_1": true, "S_1": false}, core.FeatureVector{1, 0, 0}},
		{"unknown keys ignored", core.ClientFeatureMap{"X_9": 7.0, "D_1": 2}, core.FeatureVector{2, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(schema, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, schema.Len())
		})
	}
}

func TestReconcile_TwoFeatureSchema(t *testing.T) {
	schema := core.MustFeatureSchema("D_1", "S_1")
	got, err := Reconcile(schema, core.ClientFeatureMap{"D_1": 0.5})
	require.NoError(t, err)
	assert.Equal(t, core.FeatureVector{0.5, 0.0}, got)
}

func TestReconcile_InvalidValue(t *testing.T) {
	schema := core.MustFeatureSchema("D_1", "S_1")

	tests := []struct {
		name  string
		input core.ClientFeatureMap
	}{
		{"non numeric string", core.ClientFeatureMap{"D_1": "abc"}},
		{"empty string", core.ClientFeatureMap{"S_1": ""}},
		{"null", core.ClientFeatureMap{"D_1": nil}},
		{"array", core.ClientFeatureMap{"D_1": []any{1.0}}},
		{"object", core.ClientFeatureMap{"S_1": map[string]any{"v": 1.0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Reconcile(schema, tt.input)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, core.IsInvalidFeatureValue(err))
		})
	}
}

func TestReconcile_InvalidValueIgnoredWhenUnknown(t *testing.T) {
	schema := core.MustFeatureSchema("D_1")
	got, err := Reconcile(schema, core.ClientFeatureMap{"not_in_schema": "abc"})
	require.NoError(t, err)
	assert.Equal(t, core.FeatureVector{0}, got)
}

func TestReconcile_NaNString(t *testing.T) {
	schema := core.MustFeatureSchema("D_1")
	got, err := Reconcile(schema, core.ClientFeatureMap{"D_1": "nan"})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got[0]))
}

type recordingMonitor struct {
	stats []ReconcileStats
}

func (m *recordingMonitor) RecordReconcile(_ context.Context, s ReconcileStats) {
	m.stats = append(m.stats, s)
}

func TestReconciler_FallbackAndMonitor(t *testing.T) {
	schema := core.MustFeatureSchema("D_1", "S_1", "P_2")
	mon := &recordingMonitor{}
	r := NewReconciler(
		WithFallback(NewMapFallback(-1, map[string]float64{"P_2": 0.5})),
		WithMonitor(mon),
	)

	got, err := r.Reconcile(context.Background(), schema, core.ClientFeatureMap{"D_1": 3, "extra": 1})
	require.NoError(t, err)
	assert.Equal(t, core.FeatureVector{3, -1, 0.5}, got)

	require.Len(t, mon.stats, 1)
	assert.Equal(t, 1, mon.stats[0].Used)
	assert.Equal(t, []string{"S_1", "P_2"}, mon.stats[0].Missing)
	assert.Equal(t, []string{"extra"}, mon.stats[0].Unknown)

	_, err = r.Reconcile(context.Background(), schema, core.ClientFeatureMap{"D_1": "bad"})
	require.Error(t, err)
	assert.Len(t, mon.stats, 1)
}

func TestReadSchemaCSV(t *testing.T) {
	schema, err := ReadSchemaCSV(strings.NewReader("\ufefffeature,rank\nD_1,1\nS_1,2\n\nP_2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"D_1", "S_1", "P_2"}, schema.Names())

	_, err = ReadSchemaCSV(strings.NewReader("name\nD_1\n"))
	assert.Error(t, err)

	_, err = ReadSchemaCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadSchemaCSV(strings.NewReader("feature\nD_1\nD_1\n"))
	assert.True(t, core.IsArtifactLoad(err))
}

func TestReadImportanceCSV(t *testing.T) {
	table, err := ReadImportanceCSV(strings.NewReader("feature,importance\nS_1,0.1\nD_1,0.3\nP_2,0.2\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"D_1", "P_2", "S_1"}, table.Features(3))

	_, err = ReadImportanceCSV(strings.NewReader("feature,importance\nD_1,high\n"))
	assert.Error(t, err)

	_, err = ReadImportanceCSV(strings.NewReader("feature\nD_1\n"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	input := core.ClientFeatureMap{"D_1": 0.9}
	got := Merge(map[string]float64{"D_1": 0.1, "S_1": 0.2}, input)
	assert.Equal(t, core.ClientFeatureMap{"D_1": 0.9, "S_1": 0.2}, got)
	assert.Len(t, input, 1)
}

func TestCollect(t *testing.T) {
	got := collect([]string{"a", "b", "c"}, []float64{1, math.NaN(), 3})
	assert.Equal(t, map[string]float64{"a": 1, "c": 3}, got)
}
