package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/searchforge/fusion_proxy/engine"
	"github.com/searchforge/fusion_proxy/fuse"
)

const (
	defaultTimeout  = 2 * time.Second
	defaultRetryMax = 2
	minBackoff      = 100 * time.Millisecond
	maxBackoff      = 2 * time.Second
	contentTypeJSON = "application/json"

	collectionPath = "/collections/%s"
	pointsPath     = "/collections/%s/points?wait=true"
	searchPath     = "/collections/%s/points/search"
	healthPath     = "/healthz"

	// docIDKey holds the caller's document ID in the point payload, since
	// Qdrant only accepts integer or UUID point IDs.
	docIDKey = "_doc_id"
)

// pointNamespace seeds the deterministic point UUIDs derived from document IDs.
var pointNamespace = uuid.MustParse("6f1c7e0a-8d1b-4f5e-9b7a-2c4d3e5f6a7b")

// HTTPClient represents a minimal http client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// QdrantSource is an engine.Engine backed by Qdrant's REST API, one named
// vector per schema vector field.
type QdrantSource struct {
	baseURL  string
	client   HTTPClient
	retryMax int
	logger   *zap.Logger

	// collection -> vector name -> Qdrant distance; "" holds an unnamed vector
	distMu    sync.RWMutex
	distances map[string]map[string]string
}

var _ engine.Engine = (*QdrantSource)(nil)

// NewQdrantSource creates a Qdrant source client.
func NewQdrantSource(baseURL string, client HTTPClient, retryMax int, logger *zap.Logger) (*QdrantSource, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("qdrant baseURL required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if retryMax < 0 {
		retryMax = defaultRetryMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QdrantSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   client,
		retryMax:  retryMax,
		logger:    logger,
		distances: make(map[string]map[string]string),
	}, nil
}

// CreateCollection creates a collection with one named vector per vector field.
func (s *QdrantSource) CreateCollection(ctx context.Context, schema *engine.CollectionSchema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	vectors := make(map[string]any)
	distances := make(map[string]string)
	for _, f := range schema.VectorFields() {
		distance, err := qdrantDistance(f.Metric)
		if err != nil {
			return err
		}
		vectors[f.Name] = map[string]any{
			"size":     f.Dimension,
			"distance": distance,
		}
		distances[f.Name] = distance
	}

	_, err := s.execute(ctx, http.MethodPut, fmt.Sprintf(collectionPath, url.PathEscape(schema.Name)), map[string]any{
		"vectors": vectors,
	})
	if err != nil {
		return err
	}

	s.distMu.Lock()
	s.distances[schema.Name] = distances
	s.distMu.Unlock()
	return nil
}

// Insert upserts documents. Point IDs are derived from document IDs.
func (s *QdrantSource) Insert(ctx context.Context, collection string, docs []*engine.Doc) error {
	if collection == "" {
		return engine.Errorf(engine.StatusInvalidArgument, "collection required")
	}
	if len(docs) == 0 {
		return nil
	}

	points := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		payload := make(map[string]any, len(d.Fields)+1)
		for k, v := range d.Fields {
			payload[k] = v
		}
		payload[docIDKey] = d.ID
		points = append(points, map[string]any{
			"id":      PointID(d.ID),
			"vector":  d.Vectors,
			"payload": payload,
		})
	}

	_, err := s.execute(ctx, http.MethodPut, fmt.Sprintf(pointsPath, url.PathEscape(collection)), map[string]any{
		"points": points,
	})
	return err
}

// Query executes the provided queries concurrently. The first failure
// cancels the remaining calls.
//
// Qdrant reports cosine similarity for Cosine vectors; those scores are
// returned as cosine distance (1 - similarity) to match fuse.MetricCosine.
// Dot and Euclid scores pass through unchanged.
func (s *QdrantSource) Query(ctx context.Context, collection string, queries []engine.VectorQuery) (fuse.NamedResultSet, error) {
	if collection == "" {
		return nil, engine.Errorf(engine.StatusInvalidArgument, "collection required")
	}
	if len(queries) == 0 {
		return fuse.NamedResultSet{}, nil
	}

	distances, err := s.vectorDistances(ctx, collection)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lists := make([]fuse.RankedList, len(queries))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)

	for idx, query := range queries {
		idx := idx
		query := query
		wg.Add(1)
		go func() {
			defer wg.Done()
			list, err := s.search(ctx, collection, query, distanceFor(distances, query.FieldName))
			if err != nil {
				errOnce.Do(func() {
					firstErr = err
					cancel()
				})
				return
			}
			lists[idx] = list
		}()
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	out := make(fuse.NamedResultSet, len(queries))
	for idx, query := range queries {
		out[query.FieldName] = lists[idx]
	}
	return out, nil
}

// Ping checks that Qdrant answers its health endpoint.
func (s *QdrantSource) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return engine.Wrap(err, engine.StatusInternal, "ping qdrant")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return engine.CheckStatus(engine.StatusFromHTTP(resp.StatusCode), fmt.Sprintf("ping status %d", resp.StatusCode))
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *QdrantSource) search(ctx context.Context, collection string, query engine.VectorQuery, distance string) (fuse.RankedList, error) {
	body := map[string]any{
		"vector": map[string]any{
			"name":   query.FieldName,
			"vector": query.QueryVector,
		},
		"limit":        query.Limit,
		"with_payload": true,
		"with_vector":  query.IncludeVector,
	}

	raw, err := s.execute(ctx, http.MethodPost, fmt.Sprintf(searchPath, url.PathEscape(collection)), body)
	if err != nil {
		return nil, err
	}
	return decodeHits(raw, distance)
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

// vectorDistances returns the distance of every vector in collection,
// asking Qdrant once for collections this source did not create.
func (s *QdrantSource) vectorDistances(ctx context.Context, collection string) (map[string]string, error) {
	s.distMu.RLock()
	cached, ok := s.distances[collection]
	s.distMu.RUnlock()
	if ok {
		return cached, nil
	}

	raw, err := s.execute(ctx, http.MethodGet, fmt.Sprintf(collectionPath, url.PathEscape(collection)), nil)
	if err != nil {
		return nil, err
	}
	distances, err := decodeDistances(raw)
	if err != nil {
		return nil, err
	}

	s.distMu.Lock()
	s.distances[collection] = distances
	s.distMu.Unlock()
	return distances, nil
}

func decodeDistances(raw []byte) (map[string]string, error) {
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors json.RawMessage `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, engine.Wrap(err, engine.StatusInternal, "decode collection info")
	}

	out := make(map[string]string)
	vectors := info.Result.Config.Params.Vectors
	if len(vectors) == 0 {
		return out, nil
	}

	var single vectorParams
	if err := json.Unmarshal(vectors, &single); err == nil && single.Distance != "" {
		out[""] = single.Distance
		return out, nil
	}

	var named map[string]vectorParams
	if err := json.Unmarshal(vectors, &named); err != nil {
		return nil, engine.Wrap(err, engine.StatusInternal, "decode collection vectors")
	}
	for name, p := range named {
		out[name] = p.Distance
	}
	return out, nil
}

func distanceFor(distances map[string]string, field string) string {
	if d, ok := distances[field]; ok {
		return d
	}
	return distances[""]
}

func decodeHits(raw []byte, distance string) (fuse.RankedList, error) {
	var payload struct {
		Result []searchHit `json:"result"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, engine.Wrap(err, engine.StatusInternal, "decode search response")
	}

	list := make(fuse.RankedList, 0, len(payload.Result))
	for _, hit := range payload.Result {
		id := fmt.Sprintf("%v", hit.ID)
		if docID, ok := hit.Payload[docIDKey].(string); ok && docID != "" {
			id = docID
		}
		score := hit.Score
		if distance == "Cosine" {
			score = 1 - score
		}
		list = append(list, fuse.Item{ID: id, Score: score})
	}
	return list, nil
}

func (s *QdrantSource) execute(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, engine.Wrap(err, engine.StatusInvalidArgument, "marshal payload")
		}
	}

	fullURL := s.baseURL + path

	var (
		attempt   int
		lastError error
		backoff   = minBackoff
	)

	for {
		attempt++
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", contentTypeJSON)
		}
		req.Header.Set("Accept", contentTypeJSON)

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastError = engine.Wrap(err, engine.StatusInternal, "qdrant request")
		} else {
			status := resp.StatusCode
			respBody, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()

			switch {
			case readErr != nil:
				lastError = engine.Wrap(readErr, engine.StatusInternal, "read response")
			case status >= 500 && attempt <= s.retryMax:
				lastError = engine.Errorf(engine.StatusInternal, "qdrant %d: %s", status, strings.TrimSpace(string(respBody)))
			case status >= 400:
				return nil, engine.Errorf(engine.StatusFromHTTP(status), "qdrant %d: %s", status, strings.TrimSpace(string(respBody)))
			default:
				return respBody, nil
			}
		}

		if attempt > s.retryMax {
			return nil, lastError
		}

		s.logger.Debug("retrying qdrant request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Error(lastError),
		)

		if !sleepWithContext(ctx, backoff) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("retry interrupted")
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *QdrantSource) String() string {
	return fmt.Sprintf("qdrant_source{base=%s,retry_max=%d}", s.baseURL, s.retryMax)
}

// PointID maps a document ID onto a Qdrant point ID. UUIDs are kept,
// anything else gets a deterministic name-based UUID.
func PointID(docID string) string {
	if parsed, err := uuid.Parse(docID); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

func qdrantDistance(metric fuse.MetricKind) (string, error) {
	switch metric {
	case fuse.MetricL2:
		return "Euclid", nil
	case fuse.MetricIP:
		return "Dot", nil
	case fuse.MetricCosine:
		return "Cosine", nil
	default:
		return "", engine.Errorf(engine.StatusNotSupported, "metric %s", metric)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
