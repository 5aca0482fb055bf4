package engine

import (
	"strings"

	"github.com/searchforge/fusion_proxy/fuse"
)

// DataType is the storage type of a field.
type DataType string

const (
	DataTypeString     DataType = "string"
	DataTypeInt64      DataType = "int64"
	DataTypeFloat64    DataType = "float64"
	DataTypeBool       DataType = "bool"
	DataTypeVectorFP32 DataType = "vector_fp32"
)

// IsVector reports whether the type holds dense vectors.
func (d DataType) IsVector() bool {
	return d == DataTypeVectorFP32
}

// FieldSchema describes one field of a collection.
type FieldSchema struct {
	Name      string          `json:"name" yaml:"name"`
	DataType  DataType        `json:"data_type" yaml:"data_type"`
	Dimension int             `json:"dimension,omitempty" yaml:"dimension,omitempty"`
	Metric    fuse.MetricKind `json:"metric,omitempty" yaml:"metric,omitempty"`
}

// VectorFP32 describes a dense float32 vector field.
func VectorFP32(name string, dimension int, metric fuse.MetricKind) FieldSchema {
	return FieldSchema{
		Name:      name,
		DataType:  DataTypeVectorFP32,
		Dimension: dimension,
		Metric:    metric,
	}
}

// Scalar describes a non-vector payload field.
func Scalar(name string, dataType DataType) FieldSchema {
	return FieldSchema{Name: name, DataType: dataType}
}

// CollectionSchema is the full field layout of a collection.
type CollectionSchema struct {
	Name   string        `json:"name"`
	Fields []FieldSchema `json:"fields"`
}

// NewCollectionSchema returns an empty schema.
func NewCollectionSchema(name string) *CollectionSchema {
	return &CollectionSchema{Name: name}
}

// AddField appends a field, rejecting duplicates and malformed vectors.
func (s *CollectionSchema) AddField(f FieldSchema) error {
	if strings.TrimSpace(f.Name) == "" {
		return Errorf(StatusInvalidArgument, "field name required")
	}
	if _, ok := s.Field(f.Name); ok {
		return Errorf(StatusAlreadyExists, "field %s", f.Name)
	}
	switch f.DataType {
	case DataTypeVectorFP32:
		if f.Dimension <= 0 {
			return Errorf(StatusInvalidArgument, "field %s: dimension must be positive", f.Name)
		}
	case DataTypeString, DataTypeInt64, DataTypeFloat64, DataTypeBool:
	default:
		return Errorf(StatusNotSupported, "field %s: data type %q", f.Name, f.DataType)
	}
	s.Fields = append(s.Fields, f)
	return nil
}

// Field looks up a field by name.
func (s *CollectionSchema) Field(name string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// VectorFields returns the vector fields in declaration order.
func (s *CollectionSchema) VectorFields() []FieldSchema {
	var out []FieldSchema
	for _, f := range s.Fields {
		if f.DataType.IsVector() {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks the schema as a whole.
func (s *CollectionSchema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Errorf(StatusInvalidArgument, "collection name required")
	}
	if len(s.VectorFields()) == 0 {
		return Errorf(StatusInvalidArgument, "collection %s has no vector field", s.Name)
	}
	return nil
}
