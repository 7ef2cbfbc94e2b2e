package vector

import (
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCollectionNaming(t *testing.T) {
	assert.Equal(t, "project_p1_fragments", FragmentCollection("p1"))
	assert.Equal(t, "project_p1_claims", ClaimCollection("p1"))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(status.Error(codes.Unavailable, "down")))
	assert.True(t, isTransient(status.Error(codes.ResourceExhausted, "throttled")))
	assert.False(t, isTransient(status.Error(codes.InvalidArgument, "bad vector")))
	assert.False(t, isTransient(errors.New("plain error")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(status.Error(codes.NotFound, "gone")))
	assert.True(t, isNotFound(errors.New(`collection "x" doesn't exist`)))
	assert.False(t, isNotFound(status.Error(codes.Internal, "boom")))
	assert.False(t, isNotFound(nil))
}

func TestPointID(t *testing.T) {
	assert.Equal(t, "", pointID(nil))
	assert.Equal(t, "abc", pointID(qdrant.NewID("abc")))
	assert.Equal(t, "7", pointID(qdrant.NewIDNum(7)))
}

func TestDecodePayload(t *testing.T) {
	payload := map[string]*qdrant.Value{
		"text":  {Kind: &qdrant.Value_StringValue{StringValue: "hello"}},
		"count": {Kind: &qdrant.Value_IntegerValue{IntegerValue: 3}},
		"score": {Kind: &qdrant.Value_DoubleValue{DoubleValue: 0.5}},
		"flag":  {Kind: &qdrant.Value_BoolValue{BoolValue: true}},
	}
	decoded := decodePayload(payload)
	assert.Equal(t, "hello", decoded["text"])
	assert.Equal(t, int64(3), decoded["count"])
	assert.Equal(t, 0.5, decoded["score"])
	assert.Equal(t, true, decoded["flag"])
	assert.Nil(t, decodePayload(nil))
}
