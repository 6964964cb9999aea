package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLabel(t *testing.T) {
	tests := []struct {
		name     string
		existing Label
		incoming Label
		want     Label
	}{
		{"empty existing", Label{}, Label{Value: "xgboost", Source: "inference"}, Label{Value: "xgboost", Source: "inference"}},
		{"empty incoming", Label{Value: "xgboost", Source: "cache"}, Label{}, Label{Value: "xgboost", Source: "cache"}},
		{"both", Label{Value: "a", Source: "cache"}, Label{Value: "b", Source: "inference"}, Label{Value: "a|b", Source: "cache,inference"}},
		{"missing source", Label{Value: "a"}, Label{Value: "b", Source: "classify"}, Label{Value: "a|b", Source: "classify"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeLabel(tt.existing, tt.incoming))
		})
	}
}

func TestFlatten(t *testing.T) {
	got := Flatten(map[string]Label{
		"vector":     {Value: "2/3", Source: "reconcile"},
		"risk_level": {Value: "Low Risk", Source: "classify"},
	})
	assert.Equal(t, map[string]string{"vector": "2/3", "risk_level": "Low Risk"}, got)
}
