package engine

import "strings"

// Doc is a document to insert: an ID, named vectors and scalar fields.
type Doc struct {
	ID      string               `json:"id"`
	Vectors map[string][]float32 `json:"vectors"`
	Fields  map[string]any       `json:"fields,omitempty"`
}

// NewDoc returns an empty document with the given ID.
func NewDoc(id string) *Doc {
	return &Doc{
		ID:      id,
		Vectors: make(map[string][]float32),
		Fields:  make(map[string]any),
	}
}

// SetVector stores a copy of v under name.
func (d *Doc) SetVector(name string, v []float32) *Doc {
	if d.Vectors == nil {
		d.Vectors = make(map[string][]float32)
	}
	cp := make([]float32, len(v))
	copy(cp, v)
	d.Vectors[name] = cp
	return d
}

// SetField stores a scalar payload value.
func (d *Doc) SetField(name string, value any) *Doc {
	if d.Fields == nil {
		d.Fields = make(map[string]any)
	}
	d.Fields[name] = value
	return d
}

// Validate checks the document against schema.
func (d *Doc) Validate(schema *CollectionSchema) error {
	if strings.TrimSpace(d.ID) == "" {
		return Errorf(StatusInvalidArgument, "document id required")
	}
	if len(d.Vectors) == 0 {
		return Errorf(StatusInvalidArgument, "document %s has no vectors", d.ID)
	}
	for name, v := range d.Vectors {
		f, ok := schema.Field(name)
		if !ok {
			return ErrFieldNotFound(name)
		}
		if !f.DataType.IsVector() {
			return Errorf(StatusInvalidArgument, "field %s is not a vector", name)
		}
		if len(v) != f.Dimension {
			return ErrDimensionMismatch(f.Dimension, len(v))
		}
	}
	for name := range d.Fields {
		if _, ok := schema.Field(name); !ok {
			return ErrFieldNotFound(name)
		}
	}
	return nil
}
