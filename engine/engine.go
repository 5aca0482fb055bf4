package engine

import (
	"context"

	"github.com/searchforge/fusion_proxy/fuse"
)

// Engine is the external vector engine. Each query produces one ranked list
// keyed by its field name.
type Engine interface {
	CreateCollection(ctx context.Context, schema *CollectionSchema) error
	Insert(ctx context.Context, collection string, docs []*Doc) error
	Query(ctx context.Context, collection string, queries []VectorQuery) (fuse.NamedResultSet, error)
	Ping(ctx context.Context) error
}
