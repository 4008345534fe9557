package keys

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetch_PartialPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"groq":"gk"}`))
	}))
	defer server.Close()

	k, err := NewFetcher(server.URL, "").Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Groq != "gk" || k.Perplexity != "" || k.Gemini != "" {
		t.Errorf("unexpected keys %+v", k)
	}
}

func TestFetch_SendsToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"groq":"","perplexity":"pk","gemini":"mk"}`))
	}))
	defer server.Close()

	if _, err := NewFetcher(server.URL, "").Fetch(context.Background()); err == nil {
		t.Error("expected error without token")
	}

	k, err := NewFetcher(server.URL, "secret").Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.Perplexity != "pk" || k.Gemini != "mk" {
		t.Errorf("unexpected keys %+v", k)
	}
}

func TestFetch_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if _, err := NewFetcher(url, "").Fetch(context.Background()); err == nil {
		t.Error("expected error for closed server")
	}
}

func TestMerge(t *testing.T) {
	known := Keys{Groq: "local"}
	got := known.Merge(Keys{Groq: "remote", Gemini: "mk"})

	if got.Groq != "local" {
		t.Errorf("known key overwritten: %q", got.Groq)
	}
	if got.Gemini != "mk" {
		t.Errorf("missing key not filled: %q", got.Gemini)
	}
	if (Keys{}).Merge(Keys{}).Empty() != true {
		t.Error("expected empty keys")
	}
}
