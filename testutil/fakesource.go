package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// FakeResponse describes the behaviour of a single fake upstream call.
type FakeResponse struct {
	Delay  time.Duration
	Status int
	Body   string
}

// FakeHit is one scored point returned by a fake vector search.
type FakeHit struct {
	ID    string
	Score float32
}

// Request is a call recorded by the fake.
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// FakeSource provides a controllable httptest server used to simulate the
// vector engine with configurable latency, status codes and per-field hits.
type FakeSource struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses []FakeResponse
	index     int
	calls     int
	hits      map[string][]FakeHit
	vectors   map[string]map[string]string
	requests  []Request
}

// NewFakeSource constructs a new FakeSource with the provided response plan.
// When the number of executed calls exceeds the length of responses, the last
// response is reused. Searches against a vector registered with SetHits and
// info requests for a collection registered with SetCollection are answered
// from that state instead of the plan.
func NewFakeSource(responses ...FakeResponse) *FakeSource {
	if len(responses) == 0 {
		responses = []FakeResponse{{Status: http.StatusOK}}
	}

	fs := &FakeSource{
		responses: responses,
		hits:      make(map[string][]FakeHit),
		vectors:   make(map[string]map[string]string),
	}

	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		resp := fs.nextResponse(r, body)
		if resp.Delay > 0 {
			timer := time.NewTimer(resp.Delay)
			select {
			case <-timer.C:
			case <-r.Context().Done():
				timer.Stop()
				return
			}
		}

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	}))

	return fs
}

func (f *FakeSource) nextResponse(r *http.Request, body []byte) FakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.requests = append(f.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})

	if strings.HasSuffix(r.URL.Path, "/points/search") {
		var search struct {
			Vector struct {
				Name string `json:"name"`
			} `json:"vector"`
		}
		if err := json.Unmarshal(body, &search); err == nil {
			if hits, ok := f.hits[search.Vector.Name]; ok {
				return FakeResponse{Status: http.StatusOK, Body: hitsBody(hits)}
			}
		}
	}

	if r.Method == http.MethodGet {
		if name, ok := strings.CutPrefix(r.URL.Path, "/collections/"); ok && !strings.Contains(name, "/") {
			if vectors, ok := f.vectors[name]; ok {
				return FakeResponse{Status: http.StatusOK, Body: collectionBody(vectors)}
			}
		}
	}

	if f.index >= len(f.responses) {
		return f.responses[len(f.responses)-1]
	}

	resp := f.responses[f.index]
	f.index++
	return resp
}

func hitsBody(hits []FakeHit) string {
	type point struct {
		ID      string         `json:"id"`
		Score   float32        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	result := make([]point, 0, len(hits))
	for i, h := range hits {
		result = append(result, point{
			ID:      fmt.Sprintf("point-%d", i),
			Score:   h.Score,
			Payload: map[string]any{"_doc_id": h.ID},
		})
	}
	raw, _ := json.Marshal(map[string]any{"result": result, "status": "ok"})
	return string(raw)
}

func collectionBody(vectors map[string]string) string {
	params := make(map[string]any, len(vectors))
	for name, distance := range vectors {
		params[name] = map[string]any{"size": 4, "distance": distance}
	}
	raw, _ := json.Marshal(map[string]any{
		"result": map[string]any{
			"status": "green",
			"config": map[string]any{"params": map[string]any{"vectors": params}},
		},
		"status": "ok",
	})
	return string(raw)
}

// SetCollection registers a collection with named vectors mapped to their
// Qdrant distance ("Cosine", "Dot", "Euclid").
func (f *FakeSource) SetCollection(name string, vectors map[string]string) {
	f.mu.Lock()
	f.vectors[name] = vectors
	f.mu.Unlock()
}

// SetHits registers the ranked hits returned for searches on a named vector.
func (f *FakeSource) SetHits(vector string, hits ...FakeHit) {
	f.mu.Lock()
	f.hits[vector] = hits
	f.mu.Unlock()
}

// URL returns the base URL for the fake source.
func (f *FakeSource) URL() string {
	if f == nil || f.server == nil {
		return ""
	}
	return f.server.URL
}

// Calls returns the number of requests handled so far.
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Requests returns a copy of the recorded requests.
func (f *FakeSource) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// SetResponses overrides the remaining response plan, resetting the cursor.
func (f *FakeSource) SetResponses(responses ...FakeResponse) {
	if f == nil {
		return
	}
	if len(responses) == 0 {
		responses = []FakeResponse{{Status: http.StatusOK}}
	}
	f.mu.Lock()
	f.responses = responses
	f.index = 0
	f.calls = 0
	f.mu.Unlock()
}

// Close terminates the hosted httptest server.
func (f *FakeSource) Close() {
	if f == nil || f.server == nil {
		return
	}
	f.server.Close()
}
