package engine

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchforge/fusion_proxy/fuse"
)

func testSchema(t *testing.T) *CollectionSchema {
	t.Helper()
	s := NewCollectionSchema("docs")
	require.NoError(t, s.AddField(VectorFP32("dense", 3, fuse.MetricCosine)))
	require.NoError(t, s.AddField(VectorFP32("title", 2, fuse.MetricL2)))
	require.NoError(t, s.AddField(Scalar("lang", DataTypeString)))
	return s
}

func TestStatusFromCode(t *testing.T) {
	assert.Equal(t, StatusOK, StatusFromCode(0))
	assert.Equal(t, StatusFailedPrecondition, StatusFromCode(7))
	assert.Equal(t, StatusUnknown, StatusFromCode(8))
	assert.Equal(t, StatusUnknown, StatusFromCode(42))
}

func TestStatusFromHTTP(t *testing.T) {
	cases := map[int]StatusCode{
		http.StatusOK:                  StatusOK,
		http.StatusNotFound:            StatusNotFound,
		http.StatusConflict:            StatusAlreadyExists,
		http.StatusUnprocessableEntity: StatusInvalidArgument,
		http.StatusForbidden:           StatusPermissionDenied,
		http.StatusNotImplemented:      StatusNotSupported,
		http.StatusPreconditionFailed:  StatusFailedPrecondition,
		http.StatusBadGateway:          StatusInternal,
		http.StatusTeapot:              StatusUnknown,
	}
	for status, want := range cases {
		assert.Equal(t, want, StatusFromHTTP(status), "status %d", status)
	}
}

func TestCheckStatus(t *testing.T) {
	require.NoError(t, CheckStatus(StatusOK, "ignored"))

	err := CheckStatus(StatusNotFound, "collection docs")
	require.Error(t, err)
	assert.Equal(t, StatusNotFound, CodeOf(err))
	assert.Contains(t, err.Error(), "not found: collection docs")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, StatusOK, CodeOf(nil))
	assert.Equal(t, StatusUnknown, CodeOf(errors.New("plain")))

	inner := errors.New("connection reset")
	wrapped := Wrap(inner, StatusInternal, "query engine")
	assert.ErrorIs(t, wrapped, inner)
	assert.True(t, IsCode(wrapped, StatusInternal))
	assert.Nil(t, Wrap(nil, StatusInternal, "noop"))
}

func TestSchemaAddField(t *testing.T) {
	s := testSchema(t)

	err := s.AddField(Scalar("lang", DataTypeInt64))
	assert.True(t, IsCode(err, StatusAlreadyExists))

	err = s.AddField(VectorFP32("bad", 0, fuse.MetricL2))
	assert.True(t, IsCode(err, StatusInvalidArgument))

	err = s.AddField(FieldSchema{Name: "blob", DataType: "bytes"})
	assert.True(t, IsCode(err, StatusNotSupported))

	require.NoError(t, s.Validate())
	assert.Len(t, s.VectorFields(), 2)
	assert.Error(t, NewCollectionSchema("empty").Validate())
}

func TestDocValidate(t *testing.T) {
	s := testSchema(t)

	doc := NewDoc("d1").SetVector("dense", []float32{1, 0, 0}).SetField("lang", "en")
	require.NoError(t, doc.Validate(s))

	err := NewDoc("d2").SetVector("dense", []float32{1, 0}).Validate(s)
	assert.True(t, IsCode(err, StatusInvalidArgument))
	assert.Contains(t, err.Error(), "expected 3, got 2")

	err = NewDoc("d3").SetVector("sparse", []float32{1}).Validate(s)
	assert.True(t, IsCode(err, StatusNotFound))

	err = NewDoc("").SetVector("dense", []float32{1, 0, 0}).Validate(s)
	assert.True(t, IsCode(err, StatusInvalidArgument))
}

func TestDocSetVectorCopies(t *testing.T) {
	v := []float32{1, 2, 3}
	doc := NewDoc("d").SetVector("dense", v)
	v[0] = 9
	assert.Equal(t, float32(1), doc.Vectors["dense"][0])
}

func TestVectorQueryValidate(t *testing.T) {
	s := testSchema(t)

	q := NewVectorQuery("title").TopK(5).Vector([]float32{0.1, 0.2}).WithFields("lang")
	require.NoError(t, q.Validate(s))
	assert.Equal(t, 5, q.Limit)

	assert.True(t, IsCode(q.TopK(0).Validate(s), StatusInvalidArgument))
	assert.True(t, IsCode(q.Vector([]float32{1}).Validate(s), StatusInvalidArgument))
	assert.True(t, IsCode(NewVectorQuery("lang").Vector([]float32{1}).Validate(s), StatusInvalidArgument))
	assert.True(t, IsCode(NewVectorQuery("nope").Validate(s), StatusNotFound))
	assert.True(t, IsCode(q.WithFields("missing").Validate(s), StatusNotFound))
}
