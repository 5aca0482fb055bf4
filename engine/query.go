package engine

// VectorQuery is a nearest-neighbour query against one vector field.
type VectorQuery struct {
	FieldName     string    `json:"field"`
	Limit         int       `json:"topk"`
	QueryVector   []float32 `json:"vector"`
	OutputFields  []string  `json:"output_fields,omitempty"`
	IncludeVector bool      `json:"include_vector,omitempty"`
}

// NewVectorQuery starts a query on field with a default topk of 10.
func NewVectorQuery(field string) VectorQuery {
	return VectorQuery{FieldName: field, Limit: 10}
}

// TopK sets the number of neighbours to return.
func (q VectorQuery) TopK(k int) VectorQuery {
	q.Limit = k
	return q
}

// Vector sets the query vector.
func (q VectorQuery) Vector(v []float32) VectorQuery {
	cp := make([]float32, len(v))
	copy(cp, v)
	q.QueryVector = cp
	return q
}

// WithFields selects payload fields to return.
func (q VectorQuery) WithFields(fields ...string) VectorQuery {
	q.OutputFields = append([]string(nil), fields...)
	return q
}

// Validate checks the query against schema.
func (q VectorQuery) Validate(schema *CollectionSchema) error {
	if q.Limit <= 0 {
		return Errorf(StatusInvalidArgument, "topk must be positive")
	}
	f, ok := schema.Field(q.FieldName)
	if !ok {
		return ErrFieldNotFound(q.FieldName)
	}
	if !f.DataType.IsVector() {
		return Errorf(StatusInvalidArgument, "field %s is not a vector", q.FieldName)
	}
	if len(q.QueryVector) != f.Dimension {
		return ErrDimensionMismatch(f.Dimension, len(q.QueryVector))
	}
	for _, name := range q.OutputFields {
		if _, ok := schema.Field(name); !ok {
			return ErrFieldNotFound(name)
		}
	}
	return nil
}
