package controller

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/searchforge/fusion_proxy/engine"
	"github.com/searchforge/fusion_proxy/fuse"
	"github.com/searchforge/fusion_proxy/internal/contract"
	"github.com/searchforge/fusion_proxy/obs"
	"github.com/searchforge/fusion_proxy/policy"
)

// Return codes reported in SearchResponse.RetCode.
const (
	RetOK             = "OK"
	RetDegraded       = "DEGRADED"
	RetBudgetExceeded = "BUDGET_EXCEEDED"
)

// Config groups controller dependencies.
type Config struct {
	DefaultTopK     int
	TopNMax         int
	BudgetMS        int
	Fusion          fuse.Config
	Policy          policy.EngineConfig
	Metrics         *policy.Metrics
	Logger          *zap.Logger
	CacheTTL        time.Duration
	PolicyVersion   string
	LangfuseHost    string
	LangfuseProject string
	FallbackOnError bool
}

// Controller coordinates engine calls, policy, caching and fusion.
type Controller struct {
	engine   engine.Engine
	policies *policy.Set
	metrics  *policy.Metrics
	logger   *zap.Logger
	cache    *Cache

	defaultTopK int
	topNMax     int
	budgetMS    int
	fusion      fuse.Config
	policyHash  string
	host        string
	project     string
	fallback    bool

	schemasMu sync.RWMutex
	schemas   map[string]*engine.CollectionSchema
}

// New constructs a controller.
func New(eng engine.Engine, cfg Config) (*Controller, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine required")
	}

	policyConfig := cfg.Policy
	if policyConfig.Timeout <= 0 {
		policyConfig.Timeout = 300 * time.Millisecond
	}
	policies, err := policy.NewSet(policyConfig, cfg.Metrics)
	if err != nil {
		return nil, err
	}

	fusion := fuse.DefaultConfig().Merge(cfg.Fusion)
	if _, err := fuse.New(fusion); err != nil {
		return nil, fmt.Errorf("fusion config: %w", err)
	}

	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = fusion.TopN
	}
	if cfg.TopNMax <= 0 {
		cfg.TopNMax = 64
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		engine:      eng,
		policies:    policies,
		metrics:     cfg.Metrics,
		logger:      logger,
		cache:       NewCache(cfg.CacheTTL),
		defaultTopK: cfg.DefaultTopK,
		topNMax:     cfg.TopNMax,
		budgetMS:    cfg.BudgetMS,
		fusion:      fusion,
		policyHash:  cfg.PolicyVersion,
		host:        cfg.LangfuseHost,
		project:     cfg.LangfuseProject,
		fallback:    cfg.FallbackOnError,
		schemas:     make(map[string]*engine.CollectionSchema),
	}, nil
}

// TopNMax returns the largest accepted topn/topk.
func (c *Controller) TopNMax() int {
	return c.topNMax
}

// CreateCollection validates and creates a collection, remembering its schema
// for request validation.
func (c *Controller) CreateCollection(ctx context.Context, schema *engine.CollectionSchema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	err := c.guard(ctx, policy.OpAdmin, func(callCtx context.Context) error {
		return c.engine.CreateCollection(callCtx, schema)
	})
	if err != nil {
		c.logger.Warn("create collection failed", zap.String("collection", schema.Name), zap.Error(err))
		return err
	}

	c.schemasMu.Lock()
	c.schemas[schema.Name] = schema
	c.schemasMu.Unlock()
	return nil
}

// Insert validates documents against the known schema and writes them.
// Cached searches on the collection are dropped.
func (c *Controller) Insert(ctx context.Context, collection string, docs []*engine.Doc) error {
	if schema, ok := c.schema(collection); ok {
		for _, d := range docs {
			if err := d.Validate(schema); err != nil {
				return err
			}
		}
	}

	err := c.guard(ctx, policy.OpInsert, func(callCtx context.Context) error {
		return c.engine.Insert(callCtx, collection, docs)
	})
	if err != nil {
		c.logger.Warn("insert failed", zap.String("collection", collection), zap.Int("docs", len(docs)), zap.Error(err))
		return err
	}

	c.cache.DropCollection(collection)
	return nil
}

// Search queries every requested vector field and fuses the ranked lists.
func (c *Controller) Search(ctx context.Context, req contract.SearchRequest) (contract.SearchResponse, error) {
	resp := contract.SearchResponse{
		RetCode:   RetOK,
		ListSizes: make(map[string]int),
		TraceURL:  c.BuildTraceURL(req.TraceID),
	}

	if err := req.Validate(c.topNMax); err != nil {
		return resp, err
	}

	fusionCfg := c.fusion.Merge(req.Fusion)
	if strategyName(fusionCfg) == fuse.StrategyWeighted && fusionCfg.Metric == "" {
		fusionCfg.Metric = c.schemaMetric(req)
	}
	fuser, err := fuse.New(fusionCfg)
	if err != nil {
		return resp, engine.Wrap(err, engine.StatusInvalidArgument, "fusion config")
	}
	resp.Strategy = strategyName(fusionCfg)

	queries, err := c.buildQueries(req)
	if err != nil {
		return resp, err
	}

	cacheKey := BuildCacheKey(req.Collection, queries, fusionCfg, c.policyHash)
	if entry, ok := c.cache.Get(cacheKey); ok {
		resp.Items = cloneItems(entry.Items)
		resp.ListSizes = cloneSizes(entry.ListSizes)
		resp.Timings.EngineMS = entry.EngineMS
		resp.Timings.CacheHit = true
		return resp, nil
	}

	start := time.Now()
	defer func() {
		c.metrics.ObserveTotal(time.Since(start))
	}()

	budgetMS := req.BudgetMS
	if budgetMS == 0 {
		budgetMS = c.budgetMS
	}
	budget, err := policy.NewBudgetArbiter(ctx, budgetMS, c.metrics)
	if err != nil {
		return resp, engine.Wrap(err, engine.StatusInvalidArgument, "budget")
	}
	defer budget.Release()

	spanCtx, span := obs.StartSpan(budget.Context(), "fusion_proxy.search",
		attribute.String("collection", req.Collection),
		attribute.String("strategy", resp.Strategy),
		attribute.Int("queries", len(queries)),
	)
	defer span.End()

	engineStart := time.Now()
	var lists fuse.NamedResultSet
	err = c.guard(spanCtx, policy.OpQuery, func(callCtx context.Context) error {
		var qerr error
		lists, qerr = c.engine.Query(callCtx, req.Collection, queries)
		return qerr
	})
	resp.Timings.EngineMS = time.Since(engineStart).Milliseconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return c.degrade(resp, req, budget, err)
	}

	result := fuser.Fuse(lists)
	c.metrics.ObserveFusion(resp.Strategy, len(lists), len(result))
	span.SetAttributes(attribute.Int("fused_items", len(result)))

	for name, list := range lists {
		resp.ListSizes[name] = len(list)
	}
	resp.Items = contract.FromFused(result)
	resp.Timings.TotalMS = time.Since(start).Milliseconds()

	c.cache.Set(cacheKey, CacheEntry{
		Collection: req.Collection,
		Items:      cloneItems(resp.Items),
		ListSizes:  cloneSizes(resp.ListSizes),
		EngineMS:   resp.Timings.EngineMS,
	})

	return resp, nil
}

func (c *Controller) degrade(resp contract.SearchResponse, req contract.SearchRequest, budget *policy.BudgetArbiter, err error) (contract.SearchResponse, error) {
	resp.Degraded = true
	resp.RetCode = RetDegraded
	resp.Items = []contract.Item{}

	if budget.Hit() {
		resp.RetCode = RetBudgetExceeded
		err = fmt.Errorf("%w: %w", policy.ErrBudgetExceeded, err)
	}

	c.logger.Warn("engine query failed",
		zap.String("collection", req.Collection),
		zap.String("trace_id", req.TraceID),
		zap.String("ret_code", resp.RetCode),
		zap.Error(err),
	)

	if c.fallback && !isClientError(err) {
		return resp, nil
	}
	return resp, err
}

func (c *Controller) buildQueries(req contract.SearchRequest) ([]engine.VectorQuery, error) {
	schema, known := c.schema(req.Collection)

	queries := make([]engine.VectorQuery, 0, len(req.Queries))
	for _, q := range req.Queries {
		topk := q.TopK
		if topk <= 0 {
			topk = c.defaultTopK
		}
		vq := engine.NewVectorQuery(q.Field).TopK(topk).Vector(q.Vector)
		if known {
			if err := vq.Validate(schema); err != nil {
				return nil, err
			}
		}
		queries = append(queries, vq)
	}
	return queries, nil
}

func (c *Controller) guard(ctx context.Context, op string, fn func(context.Context) error) error {
	p, ok := c.policies.For(op)
	if !ok {
		return fn(ctx)
	}
	return p.Execute(ctx, fn)
}

// schemaMetric returns the metric shared by every queried field of a known
// collection, or "" when the fields disagree or the schema is unknown.
func (c *Controller) schemaMetric(req contract.SearchRequest) string {
	schema, ok := c.schema(req.Collection)
	if !ok {
		return ""
	}
	metric := fuse.MetricUndefined
	for i, q := range req.Queries {
		f, ok := schema.Field(q.Field)
		if !ok || (i > 0 && f.Metric != metric) {
			return ""
		}
		metric = f.Metric
	}
	if metric == fuse.MetricUndefined {
		return ""
	}
	return metric.String()
}

func (c *Controller) schema(collection string) (*engine.CollectionSchema, bool) {
	c.schemasMu.RLock()
	defer c.schemasMu.RUnlock()
	s, ok := c.schemas[collection]
	return s, ok
}

// BuildTraceURL builds a Langfuse trace link if configured.
func (c *Controller) BuildTraceURL(traceID string) string {
	if c.host == "" || c.project == "" || traceID == "" {
		return ""
	}
	base := strings.TrimSuffix(c.host, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/project/%s/traces?query=%s", base, c.project, url.QueryEscape(traceID))
}

// Ping validates engine readiness.
func (c *Controller) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	return c.engine.Ping(ctx)
}

func strategyName(cfg fuse.Config) string {
	name := strings.ToLower(cfg.Strategy)
	if name == "" {
		return fuse.StrategyRRF
	}
	return name
}

// isClientError reports errors the caller must see even under fallback.
func isClientError(err error) bool {
	switch engine.CodeOf(err) {
	case engine.StatusNotFound, engine.StatusInvalidArgument, engine.StatusPermissionDenied,
		engine.StatusAlreadyExists, engine.StatusFailedPrecondition, engine.StatusNotSupported:
		return true
	}
	return false
}

func cloneItems(items []contract.Item) []contract.Item {
	out := make([]contract.Item, len(items))
	copy(out, items)
	return out
}

func cloneSizes(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
