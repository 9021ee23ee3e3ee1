package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
)

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestOpenAPISpecServed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Options{})
	rec := serve(h, http.MethodGet, paths.PathSwagger+"/openapi.json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var doc struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := doc.Paths["/tickets/{id}/todos/{index}"]; !ok {
		t.Fatal("openapi document is missing the checklist route")
	}
}

func TestReadyReflectsStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Options{Ready: func(context.Context) error { return errors.New("db down") }})
	if rec := serve(h, http.MethodGet, paths.PathReady); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready = %d, want 503", rec.Code)
	}
	if rec := serve(h, http.MethodGet, paths.PathHealth); rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := New(Options{})
	serve(h, http.MethodGet, paths.PathHealth)
	rec := serve(h, http.MethodGet, PathMetrics)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ticket_tracker_http_requests_total") {
		t.Fatal("request counter not exported")
	}
}
