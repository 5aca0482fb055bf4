package contract

import (
	"context"

	"github.com/searchforge/fusion_proxy/engine"
	"github.com/searchforge/fusion_proxy/fuse"
)

// TraceIDHeader carries the request trace id in both directions.
const TraceIDHeader = "X-Trace-Id"

// QueryVector is one nearest-neighbour query; its field names the ranked
// list it produces.
type QueryVector struct {
	Field  string    `json:"field"`
	Vector []float32 `json:"vector"`
	TopK   int       `json:"topk,omitempty"`
}

// SearchRequest captures a multi-vector search with fusion.
type SearchRequest struct {
	Collection string        `json:"-"`
	Queries    []QueryVector `json:"queries"`
	Fusion     fuse.Config   `json:"fusion"`
	BudgetMS   int           `json:"budget_ms,omitempty"`
	TraceID    string        `json:"-"`
}

// Validate ensures the request parameters are consistent. maxTopN bounds
// both the fused output and each per-field query.
func (r SearchRequest) Validate(maxTopN int) error {
	if r.Collection == "" {
		return engine.Errorf(engine.StatusInvalidArgument, "collection required")
	}
	if len(r.Queries) == 0 {
		return engine.Errorf(engine.StatusInvalidArgument, "at least one query required")
	}
	seen := make(map[string]struct{}, len(r.Queries))
	for _, q := range r.Queries {
		if q.Field == "" {
			return engine.Errorf(engine.StatusInvalidArgument, "query field required")
		}
		if _, dup := seen[q.Field]; dup {
			return engine.Errorf(engine.StatusInvalidArgument, "duplicate query field %s", q.Field)
		}
		seen[q.Field] = struct{}{}
		if len(q.Vector) == 0 {
			return engine.Errorf(engine.StatusInvalidArgument, "query %s: vector required", q.Field)
		}
		if q.TopK < 0 || (maxTopN > 0 && q.TopK > maxTopN) {
			return engine.Errorf(engine.StatusInvalidArgument, "query %s: topk out of range (max %d)", q.Field, maxTopN)
		}
	}
	if r.Fusion.TopN < 0 || (maxTopN > 0 && r.Fusion.TopN > maxTopN) {
		return engine.Errorf(engine.StatusInvalidArgument, "fusion topn out of range (max %d)", maxTopN)
	}
	if r.BudgetMS < 0 {
		return engine.Errorf(engine.StatusInvalidArgument, "budget_ms must not be negative")
	}
	return nil
}

// Item is a fused search result.
type Item struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// Timings reports where a search spent its time.
type Timings struct {
	TotalMS  int64 `json:"total_ms"`
	EngineMS int64 `json:"engine_ms"`
	CacheHit bool  `json:"cache_hit"`
}

// SearchResponse is the public response schema for search.
type SearchResponse struct {
	Items     []Item         `json:"items"`
	Strategy  string         `json:"strategy"`
	ListSizes map[string]int `json:"list_sizes"`
	Timings   Timings        `json:"timings"`
	RetCode   string         `json:"ret_code"`
	Degraded  bool           `json:"degraded"`
	TraceURL  string         `json:"trace_url,omitempty"`
}

// CreateCollectionRequest defines a collection schema.
type CreateCollectionRequest struct {
	Name   string               `json:"name"`
	Fields []engine.FieldSchema `json:"fields"`
}

// InsertRequest carries documents for one collection.
type InsertRequest struct {
	Docs []engine.Doc `json:"docs"`
}

// InsertResponse reports how many documents were written.
type InsertResponse struct {
	Inserted int `json:"inserted"`
}

// ErrorResponse is the body returned on failure.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

type contextKey string

const traceIDKey contextKey = "fusion_proxy_trace_id"

// WithTraceID stores the trace identifier in context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts the trace identifier.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	traceID, ok := ctx.Value(traceIDKey).(string)
	return traceID, ok
}

// FromFused converts fused output into response items.
func FromFused(result fuse.FusedResult) []Item {
	out := make([]Item, len(result))
	for i, it := range result {
		out[i] = Item{ID: it.ID, Score: it.Score}
	}
	return out
}
