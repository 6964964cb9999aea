package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/creditiq/core"
)

type fakeModel struct {
	n     int
	p     float64
	err   error
	delay time.Duration
}

func (f *fakeModel) Name() string     { return "fake" }
func (f *fakeModel) NumFeatures() int { return f.n }
func (f *fakeModel) Predict(ctx context.Context, _ core.FeatureVector) (float64, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return f.p, f.err
}

func TestEngine_Infer(t *testing.T) {
	tests := []struct {
		name    string
		model   *fakeModel
		x       core.FeatureVector
		want    float64
		wantErr bool
	}{
		{"ok", &fakeModel{n: 2, p: 0.42}, core.FeatureVector{1, 2}, 0.42, false},
		{"clamp high", &fakeModel{n: 2, p: 1.2}, core.FeatureVector{1, 2}, 1, false},
		{"clamp low", &fakeModel{n: 2, p: -0.1}, core.FeatureVector{1, 2}, 0, false},
		{"length mismatch", &fakeModel{n: 3, p: 0.5}, core.FeatureVector{1, 2}, 0, true},
		{"nan", &fakeModel{n: 2, p: math.NaN()}, core.FeatureVector{1, 2}, 0, true},
		{"inf", &fakeModel{n: 2, p: math.Inf(1)}, core.FeatureVector{1, 2}, 0, true},
		{"model error", &fakeModel{n: 2, err: errors.New("boom")}, core.FeatureVector{1, 2}, 0, true},
		{"timeout", &fakeModel{n: 2, p: 0.5, delay: time.Second}, core.FeatureVector{1, 2}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(tt.model, 50*time.Millisecond)
			got, err := e.Infer(context.Background(), tt.x)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, core.IsInference(err), err.Error())
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestEngine_NilModel(t *testing.T) {
	var e *Engine
	_, err := e.Infer(context.Background(), core.FeatureVector{1})
	assert.ErrorIs(t, err, core.ErrModelUnavailable)
	assert.ErrorIs(t, NewEngine(nil, 0).Ready(context.Background()), core.ErrModelUnavailable)
}

func TestBuild(t *testing.T) {
	m, err := Build(Spec{Kind: KindGBDT, Artifact: modelJSON("5E-1"), FeatureNames: []string{"D_1", "S_1"}})
	require.NoError(t, err)
	assert.Equal(t, KindGBDT, m.Name())

	_, err = Build(Spec{Kind: KindGBDT, Artifact: modelJSON("5E-1"), FeatureNames: []string{"D_1", "S_1", "P_2"}})
	assert.True(t, core.IsArtifactLoad(err))

	_, err = Build(Spec{Kind: "onnx"})
	assert.True(t, core.IsArtifactLoad(err))

	_, err = Build(Spec{Kind: KindRPC, FeatureNames: []string{"D_1"}})
	assert.True(t, core.IsArtifactLoad(err))

	assert.Equal(t, []string{KindGBDT, KindKServe, KindLR, KindRPC}, SupportedKinds())
}

func TestRPCModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body struct {
			Instances [][]*float64 `json:"instances"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Instances, 1)
		require.Len(t, body.Instances[0], 2)
		assert.Equal(t, 0.5, *body.Instances[0][0])
		assert.Nil(t, body.Instances[0][1])
		_ = json.NewEncoder(w).Encode(map[string]any{"scores": []float64{0.42}})
	}))
	defer srv.Close()

	m, err := Build(Spec{Kind: KindRPC, Endpoint: srv.URL, Token: "secret", FeatureNames: []string{"D_1", "S_1"}})
	require.NoError(t, err)

	p, err := NewEngine(m, time.Second).Infer(context.Background(), core.FeatureVector{0.5, math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, 0.42, p)
}

func TestRPCModel_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewEngine(NewRPCModel("rpc", srv.URL, 1, time.Second), time.Second).Infer(context.Background(), core.FeatureVector{1})
	assert.True(t, core.IsInference(err))
}

func TestKServeModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/models/credit/versions/3/infer":
			var body struct {
				Inputs []struct {
					Name  string     `json:"name"`
					Shape []int      `json:"shape"`
					Data  []*float64 `json:"data"`
				} `json:"inputs"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.Inputs, 1)
			assert.Equal(t, "features", body.Inputs[0].Name)
			assert.Equal(t, []int{1, 2}, body.Inputs[0].Shape)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"outputs": []map[string]any{
					{"name": "label", "data": []float64{0}},
					{"name": "probabilities", "data": []float64{0.58, 0.42}},
				},
			})
		case "/v2/models/credit/versions/3/ready":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	m, err := Build(Spec{
		Kind:         KindKServe,
		Endpoint:     srv.URL,
		RemoteModel:  "credit",
		Version:      "3",
		InputName:    "features",
		OutputName:   "probabilities",
		FeatureNames: []string{"D_1", "S_1"},
	})
	require.NoError(t, err)

	e := NewEngine(m, time.Second)
	p, err := e.Infer(context.Background(), core.FeatureVector{0.1, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 0.42, p)
	assert.NoError(t, e.Ready(context.Background()))
}
