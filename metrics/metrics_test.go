package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Post("/v1/predict", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodPost, "/v1/predict", "400"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/predict", nil))

	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodPost, "/v1/predict", "400"))
	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
	if testutil.ToFloat64(HTTPRequestInFlight) != 0 {
		t.Error("in flight gauge should return to zero")
	}
}

func TestMetricsMiddlewareWithoutRouter(t *testing.T) {
	h := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "unmatched", "200"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything", nil))
	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues(http.MethodGet, "unmatched", "200"))

	if after-before != 1 {
		t.Errorf("expected unmatched counter to increase by 1, got %v", after-before)
	}
}

func TestObservePrediction(t *testing.T) {
	okBefore := testutil.ToFloat64(PredictionsTotal.WithLabelValues("predict", OutcomeOK))
	riskBefore := testutil.ToFloat64(SideEffectRiskTotal.WithLabelValues("true"))

	ObservePrediction("predict", 7.5, true, time.Millisecond)
	ObserveFailure("predict", OutcomeInvalid)

	if got := testutil.ToFloat64(PredictionsTotal.WithLabelValues("predict", OutcomeOK)) - okBefore; got != 1 {
		t.Errorf("expected one ok prediction, got %v", got)
	}
	if got := testutil.ToFloat64(SideEffectRiskTotal.WithLabelValues("true")) - riskBefore; got != 1 {
		t.Errorf("expected one risky prediction, got %v", got)
	}
	if testutil.ToFloat64(PredictionsTotal.WithLabelValues("predict", OutcomeInvalid)) < 1 {
		t.Error("expected the invalid outcome to be counted")
	}
}

func TestObserveFailures(t *testing.T) {
	before := testutil.ToFloat64(PredictionsTotal.WithLabelValues("batch", OutcomeInvalid))

	ObserveFailures("batch", OutcomeInvalid, 3)
	ObserveFailures("batch", OutcomeInvalid, 0)

	if got := testutil.ToFloat64(PredictionsTotal.WithLabelValues("batch", OutcomeInvalid)) - before; got != 3 {
		t.Errorf("expected 3 failures counted, got %v", got)
	}
}
