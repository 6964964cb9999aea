package model

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/creditiq/core"
)

const twoTreeModel = `{
  "learner": {
    "feature_names": [],
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "gbtree_model_param": {"num_trees": "2"},
        "tree_info": [0, 0],
        "trees": [
          {
            "id": 0,
            "tree_param": {"num_nodes": "3"},
            "left_children": [1, -1, -1],
            "right_children": [2, -1, -1],
            "split_indices": [0, 0, 0],
            "split_conditions": [0.5, -1.0, 1.0],
            "default_left": [1, 0, 0]
          },
          {
            "id": 1,
            "tree_param": {"num_nodes": "3"},
            "left_children": [1, -1, -1],
            "right_children": [2, -1, -1],
            "split_indices": [1, 0, 0],
            "split_conditions": [2.0, 0.5, -0.5],
            "default_left": [false, false, false]
          }
        ]
      }
    },
    "learner_model_param": {"base_score": "BASE", "num_class": "0", "num_feature": "2"},
    "objective": {"name": "binary:logistic"}
  },
  "version": [2, 0, 3]
}`

func modelJSON(base string) []byte {
	return []byte(strings.Replace(twoTreeModel, "BASE", base, 1))
}

func TestGBDTModel_Predict(t *testing.T) {
	m, err := LoadGBDTModel("xgb", modelJSON("5E-1"))
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumFeatures())
	assert.Equal(t, "xgb", m.Name())

	tests := []struct {
		name   string
		x      core.FeatureVector
		margin float64
	}{
		{"both left", core.FeatureVector{0.2, 1.0}, -0.5},
		{"both right", core.FeatureVector{0.7, 3.0}, 0.5},
		{"split boundary goes right", core.FeatureVector{0.5, 2.0}, 0.5},
		{"missing follows default", core.FeatureVector{math.NaN(), math.NaN()}, -1.5},
		{"mixed", core.FeatureVector{0.9, -4}, 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.margin, m.Margin(tt.x), 1e-6)
			p, err := m.Predict(context.Background(), tt.x)
			require.NoError(t, err)
			assert.InDelta(t, Sigmoid(tt.margin), p, 1e-6)
		})
	}
}

func TestGBDTModel_BaseScore(t *testing.T) {
	m, err := LoadGBDTModel("xgb", modelJSON("[2E-1]"))
	require.NoError(t, err)
	want := math.Log(0.2/0.8) - 0.5
	assert.InDelta(t, want, m.Margin(core.FeatureVector{0.2, 1.0}), 1e-6)
}

func TestGBDTModel_WrongLength(t *testing.T) {
	m, err := LoadGBDTModel("xgb", modelJSON("5E-1"))
	require.NoError(t, err)
	_, err = m.Predict(context.Background(), core.FeatureVector{1})
	assert.True(t, core.IsInference(err))
}

func TestLoadGBDTModel_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"objective", strings.Replace(string(modelJSON("5E-1")), "binary:logistic", "multi:softprob", 1)},
		{"base score", string(modelJSON("1.5"))},
		{"num feature", strings.Replace(string(modelJSON("5E-1")), `"num_feature": "2"`, `"num_feature": "x"`, 1)},
		{"split out of range", strings.Replace(string(modelJSON("5E-1")), `"split_indices": [1, 0, 0]`, `"split_indices": [5, 0, 0]`, 1)},
		{"bad children", strings.Replace(string(modelJSON("5E-1")), `"right_children": [2, -1, -1]`, `"right_children": [9, -1, -1]`, 1)},
		{"num nodes", strings.Replace(string(modelJSON("5E-1")), `"num_nodes": "3"`, `"num_nodes": "4"`, 1)},
		{"no trees", `{"learner":{"gradient_booster":{"name":"gbtree","model":{"trees":[]}},"learner_model_param":{"base_score":"5E-1","num_feature":"2"},"objective":{"name":"binary:logistic"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGBDTModel("xgb", []byte(tt.data))
			require.Error(t, err)
			assert.True(t, core.IsArtifactLoad(err), err.Error())
		})
	}
}

func TestLRModel(t *testing.T) {
	m, err := LoadLRModel("lr", []byte(`{"bias": -1, "weights": {"S_1": 2}}`), []string{"D_1", "S_1"})
	require.NoError(t, err)
	assert.Equal(t, 2, m.NumFeatures())

	p, err := m.Predict(context.Background(), core.FeatureVector{10, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-9)

	_, err = LoadLRModel("lr", []byte(`{"bias": 0, "weights": {"X": 1}}`), []string{"D_1"})
	assert.True(t, core.IsArtifactLoad(err))
}
