package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchforge/fusion_proxy/engine"
	"github.com/searchforge/fusion_proxy/fuse"
	"github.com/searchforge/fusion_proxy/internal/contract"
	"github.com/searchforge/fusion_proxy/internal/controller"
	"github.com/searchforge/fusion_proxy/policy"
)

type stubEngine struct {
	mu          sync.Mutex
	createErr   error
	queryErr    error
	pingErr     error
	collections []string
	inserted    int
}

func (s *stubEngine) CreateCollection(_ context.Context, schema *engine.CollectionSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.collections = append(s.collections, schema.Name)
	return nil
}

func (s *stubEngine) Insert(_ context.Context, collection string, docs []*engine.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = append(s.collections, collection)
	s.inserted += len(docs)
	return nil
}

func (s *stubEngine) Query(_ context.Context, collection string, queries []engine.VectorQuery) (fuse.NamedResultSet, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := fuse.NamedResultSet{}
	for _, q := range queries {
		out[q.FieldName] = fuse.RankedList{{ID: "doc-1", Score: 0.1}, {ID: "doc-2", Score: 0.3}}
	}
	return out, nil
}

func (s *stubEngine) Ping(context.Context) error { return s.pingErr }

func newTestServer(t *testing.T, eng *stubEngine) *httptest.Server {
	t.Helper()
	ctrl, err := controller.New(eng, controller.Config{Policy: policy.EngineConfig{Timeout: time.Second}})
	require.NoError(t, err)
	router, err := NewRouter(ctrl, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndReadiness(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(t, eng)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, payload["engine_ok"])

	eng.pingErr = errors.New("connection refused")
	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCreateCollection(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(t, eng)

	body := `{"name":" docs ","fields":[{"name":"dense","data_type":"vector_fp32","dimension":3,"metric":"cosine"},{"name":"title","data_type":"string"}]}`
	resp := post(t, srv.URL+"/v1/collections", body, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []string{"docs"}, eng.collections)

	var schema engine.CollectionSchema
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&schema))
	require.Len(t, schema.Fields, 2)
	assert.Equal(t, fuse.MetricCosine, schema.Fields[0].Metric)
}

func TestCreateCollectionErrors(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(t, eng)

	resp := post(t, srv.URL+"/v1/collections", `{"name":"docs","fields":[{"name":"dense","data_type":"vector_fp32","dimension":0}]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	eng.createErr = engine.Errorf(engine.StatusAlreadyExists, "collection docs")
	resp = post(t, srv.URL+"/v1/collections", `{"name":"docs","fields":[{"name":"dense","data_type":"vector_fp32","dimension":3,"metric":"l2"}]}`, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var errResp contract.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "already_exists", errResp.Code)
	assert.NotEmpty(t, errResp.TraceID)
}

func TestInsertNormalizesCollectionName(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(t, eng)

	// fullwidth "docs"
	resp := post(t, srv.URL+"/v1/collections/%EF%BD%84%EF%BD%8F%EF%BD%83%EF%BD%93/docs",
		`{"docs":[{"id":"a","vectors":{"dense":[1,0,0]}},{"id":"b","vectors":{"dense":[0,1,0]}}]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out contract.InsertResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out.Inserted)
	assert.Equal(t, []string{"docs"}, eng.collections)

	resp = post(t, srv.URL+"/v1/collections/docs/docs", `{"docs":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t, &stubEngine{})

	header := http.Header{}
	header.Set(contract.TraceIDHeader, "trace-abc")
	resp := post(t, srv.URL+"/v1/collections/docs/search",
		`{"queries":[{"field":"dense","vector":[1,0]},{"field":"title","vector":[0,1]}],"fusion":{"strategy":"rrf","topn":1}}`, header)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trace-abc", resp.Header.Get(contract.TraceIDHeader))

	var out contract.SearchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Items, 1)
	assert.Equal(t, "doc-1", out.Items[0].ID)
	assert.Equal(t, "rrf", out.Strategy)
	assert.Equal(t, map[string]int{"dense": 2, "title": 2}, out.ListSizes)
}

func TestSearchErrors(t *testing.T) {
	eng := &stubEngine{}
	srv := newTestServer(t, eng)

	resp := post(t, srv.URL+"/v1/collections/docs/search", `{"queries":`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(contract.TraceIDHeader))

	resp = post(t, srv.URL+"/v1/collections/docs/search", `{"queries":[]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	eng.queryErr = engine.ErrCollectionNotFound("docs")
	resp = post(t, srv.URL+"/v1/collections/docs/search", `{"queries":[{"field":"dense","vector":[1]}]}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{engine.Errorf(engine.StatusInvalidArgument, "x"), http.StatusBadRequest, "invalid_argument"},
		{engine.Errorf(engine.StatusPermissionDenied, "x"), http.StatusForbidden, "permission_denied"},
		{engine.Errorf(engine.StatusNotSupported, "x"), http.StatusNotImplemented, "not_supported"},
		{engine.Errorf(engine.StatusFailedPrecondition, "x"), http.StatusPreconditionFailed, "failed_precondition"},
		{engine.Errorf(engine.StatusInternal, "x"), http.StatusBadGateway, "internal"},
		{errors.New("plain"), http.StatusBadGateway, "unknown"},
		{policy.ErrCircuitOpen, http.StatusServiceUnavailable, "circuit_open"},
		{policy.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("%w: %w", policy.ErrBudgetExceeded, context.DeadlineExceeded), http.StatusGatewayTimeout, "budget_exceeded"},
	}
	for _, tc := range cases {
		status, code := classify(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
