package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Keys is the key-relay payload. Absent keys are empty strings.
type Keys struct {
	Groq       string `json:"groq"`
	Perplexity string `json:"perplexity"`
	Gemini     string `json:"gemini"`
}

// Empty reports whether no key is set.
func (k Keys) Empty() bool {
	return k.Groq == "" && k.Perplexity == "" && k.Gemini == ""
}

// Merge returns k with empty fields filled from fetched. Keys already known
// are kept.
func (k Keys) Merge(fetched Keys) Keys {
	if k.Groq == "" {
		k.Groq = fetched.Groq
	}
	if k.Perplexity == "" {
		k.Perplexity = fetched.Perplexity
	}
	if k.Gemini == "" {
		k.Gemini = fetched.Gemini
	}
	return k
}

// Fetcher reads keys from a relay endpoint.
type Fetcher struct {
	url    string
	token  string
	client *http.Client
}

// NewFetcher returns a Fetcher for url. token, when set, is sent as a bearer
// token.
func NewFetcher(url, token string) *Fetcher {
	return &Fetcher{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Fetch calls the relay. Callers treat an error as non-fatal and keep the keys
// they already have.
func (f *Fetcher) Fetch(ctx context.Context) (Keys, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Keys{}, fmt.Errorf("create request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Keys{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Keys{}, fmt.Errorf("relay returned %d: %s", resp.StatusCode, body)
	}

	var k Keys
	if err := json.NewDecoder(resp.Body).Decode(&k); err != nil {
		return Keys{}, fmt.Errorf("decode keys: %w", err)
	}
	return k, nil
}
