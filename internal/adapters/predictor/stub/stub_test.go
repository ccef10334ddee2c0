package stub_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/agropredict/internal/adapters/predictor/stub"
	"github.com/okian/agropredict/internal/domain/types"
)

func post(t *testing.T, h http.Handler, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b)))
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func growthBody(model string) map[string]any {
	b := map[string]any{"root_length": 30.0, "yield": 410.0, "c7g_content": 0.03}
	if model != "" {
		b["model_name"] = model
	}
	return b
}

func TestGrowthPredict(t *testing.T) {
	s := stub.New(stub.WithLatencyRange(0, 0))

	rec, out := post(t, s, "/api/astragalus/predict", growthBody("KNN"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "KNN", out["model_used"])
	require.InDelta(t, 0.64, out["confidence"], 1e-9)
	require.NotEmpty(t, out["source_id"])

	_, out = post(t, s, "/api/astragalus/predict", growthBody(""))
	require.Equal(t, "XGBoost", out["model_used"])

	rec, out = post(t, s, "/api/astragalus/predict", growthBody("Unknown"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, out["error"], "not available")

	body := growthBody("KNN")
	delete(body, "yield")
	rec, out = post(t, s, "/api/astragalus/predict", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, out["error"], "yield")

	require.EqualValues(t, 4, s.Calls())
}

func TestClimatePredict(t *testing.T) {
	s := stub.New(stub.WithLatencyRange(0, 0), stub.WithClimateConfidence(0.4))

	rec, out := post(t, s, "/api/climate/predict", map[string]float64{"bio1": 6, "bio2": -11})
	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 0.4, out["confidence"], 1e-9)
	require.NotContains(t, out, "source_id")
	seedID, ok := out["seed_id"].(float64)
	require.True(t, ok, "seed_id should be a number")
	require.GreaterOrEqual(t, seedID, 1.0)
	require.Equal(t, []any{"bio1", "bio2", "bio3", "bio4", "bio5"}, out["key_factors"])
}

func TestFailureModes(t *testing.T) {
	s := stub.New(
		stub.WithLatencyRange(0, 0),
		stub.WithFailure("XGBoost", stub.FailStatus),
		stub.WithFailure("RandomForest", stub.FailErrorField),
		stub.WithFailure("KNN", stub.FailBadJSON),
		stub.WithFailure("ANN", stub.FailNoConfidence),
	)

	rec, _ := post(t, s, "/api/astragalus/predict", growthBody("XGBoost"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, out := post(t, s, "/api/astragalus/predict", growthBody("RandomForest"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "prediction failed", out["error"])

	rec, _ = post(t, s, "/api/astragalus/predict", growthBody("KNN"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, json.Valid(rec.Body.Bytes()))

	_, out = post(t, s, "/api/astragalus/predict", growthBody("ANN"))
	require.NotContains(t, out, "confidence")
}

func TestHangHonoursClientCancellation(t *testing.T) {
	s := stub.New(stub.WithFailure("KNN", stub.FailHang))
	srv := httptest.NewServer(s)
	defer srv.Close()

	b, err := json.Marshal(growthBody("KNN"))
	require.NoError(t, err)
	client := &http.Client{Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err = client.Post(srv.URL+"/api/astragalus/predict", "application/json", bytes.NewReader(b)) //nolint:bodyclose,noctx // request is expected to fail
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestCatalog(t *testing.T) {
	s := stub.New(stub.WithModels(map[string]float64{"ANN": 0.7, "KNN": 0.6}, "KNN", "ANN"))

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/astragalus/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cat types.Catalog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cat))
	require.Equal(t, []string{"KNN", "ANN"}, cat.Models)
	require.Equal(t, "KNN", cat.Default)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/astragalus/model-metrics", nil))
	var payload struct {
		Metrics []types.ModelMetric `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Metrics, 2)
	require.Equal(t, "KNN", payload.Metrics[0].Model)
	require.InDelta(t, 0.6, payload.Metrics[0].TestR2Mean, 1e-9)
}
