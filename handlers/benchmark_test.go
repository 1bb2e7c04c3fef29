package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/giygas/drug-predictor-api/artifacts"
	"github.com/giygas/drug-predictor-api/data"
)

func benchmarkHandler(b *testing.B) *HTTPHandlerImpl {
	b.Helper()

	bundle, err := artifacts.Load(b.Context(), artifacts.NewFileSource(fixtureDir), artifacts.DefaultNames())
	if err != nil {
		b.Fatalf("failed to load fixtures: %v", err)
	}
	store := data.NewDataContainer()
	if err := store.Swap(bundle); err != nil {
		b.Fatal(err)
	}
	return newHandler(store, 500)
}

func BenchmarkPredictHandler(b *testing.B) {
	h := benchmarkHandler(b)
	body := `{"drug_name":"Aspirin","generic_name":"Acetylsalicylic acid","side_effects":"Nausea","activity":80}`

	b.ReportAllocs()
	for b.Loop() {
		req := httptest.NewRequest(http.MethodPost, "/v1/predict", strings.NewReader(body))
		rr := httptest.NewRecorder()
		h.Predict(rr, req)
		if rr.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}

func BenchmarkPredictBatchCSV(b *testing.B) {
	h := benchmarkHandler(b)

	var sb strings.Builder
	sb.WriteString("drug_name,generic_name,side_effects,activity\n")
	for range 200 {
		sb.WriteString("Aspirin,Acetylsalicylic acid,Nausea,80\n")
	}
	body := sb.String()

	b.ReportAllocs()
	for b.Loop() {
		req := httptest.NewRequest(http.MethodPost, "/v1/predict/batch", strings.NewReader(body))
		req.Header.Set("Content-Type", "text/csv")
		req.Header.Set("Accept", "text/csv")
		rr := httptest.NewRecorder()
		h.PredictBatch(rr, req)
		if rr.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}
