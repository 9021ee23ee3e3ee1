package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSuggestChecklist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.URL.Path != "/suggest/checklist" || req.Title != "Logo v2" || req.Description != "bold" {
			t.Errorf("unexpected request %s %+v", r.URL.Path, req)
		}
		items := make([]string, 25)
		for i := range items {
			items[i] = fmt.Sprintf("step %d", i)
		}
		_ = json.NewEncoder(w).Encode(response{Items: items})
	}))
	defer srv.Close()

	items, err := NewClient(srv.URL, nil).SuggestChecklist(context.Background(), "Logo v2", "bold")
	if err != nil {
		t.Fatalf("SuggestChecklist: %v", err)
	}
	if len(items) != maxItems || items[0] != "step 0" {
		t.Errorf("items = %v", items)
	}
}

func TestSuggestChecklist_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).SuggestChecklist(context.Background(), "t", "")
	if err == nil || err.Error() != "model overloaded" {
		t.Errorf("err = %v", err)
	}

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer garbage.Close()
	_, err = NewClient(garbage.URL, nil).SuggestChecklist(context.Background(), "t", "")
	if err == nil || !strings.Contains(err.Error(), "decode") {
		t.Errorf("err = %v", err)
	}

	_, err = NewClient("http://127.0.0.1:1", nil).SuggestChecklist(context.Background(), "t", "")
	if err == nil {
		t.Error("expected connection error")
	}
}
