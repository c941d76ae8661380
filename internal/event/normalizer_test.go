package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/pkg/errors"
)

func TestNormalize_SingleObject(t *testing.T) {
	raw := []byte(`{"event": "video_viewed", "principal": "2vxsx-fae"}`)

	records, shape, err := Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, ShapeSingle, shape)
	require.Len(t, records, 1)
	assert.Equal(t, "video_viewed", records[0].EventName())
}

func TestNormalize_Array(t *testing.T) {
	raw := []byte(`[{"event": "a"}, {"event": "b"}, {"event": "c"}]`)

	records, shape, err := Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, ShapeArray, shape)
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].EventName())
	assert.Equal(t, "c", records[2].EventName())
}

func TestNormalize_Bulk(t *testing.T) {
	raw := []byte(`{
		"event": "video_viewed",
		"session": "s-1",
		"rows": [
			{"event_data": {"video_id": "v1"}},
			{"event_data": {"video_id": "v2", "session": "s-override"}}
		]
	}`)

	records, shape, err := Normalize(raw, "")
	require.NoError(t, err)
	assert.Equal(t, ShapeBulk, shape)
	require.Len(t, records, 2)

	assert.Equal(t, "video_viewed", records[0].EventName())
	assert.Equal(t, "v1", records[0]["video_id"])
	assert.Equal(t, "s-1", records[0]["session"])

	// Row fields win over common fields on collision.
	assert.Equal(t, "s-override", records[1]["session"])
}

func TestNormalize_BulkRowsAreIndependent(t *testing.T) {
	raw := []byte(`{
		"event": "e",
		"rows": [{"event_data": {}}, {"event_data": {}}]
	}`)

	records, _, err := Normalize(raw, "")
	require.NoError(t, err)
	require.Len(t, records, 2)

	records[0].Set("marker", "first")
	assert.False(t, records[1].Has("marker"))
}

func TestNormalize_BulkWinsOverSingle(t *testing.T) {
	// An object carrying a `rows` key is classified as bulk even if it would
	// also parse as a single event, and malformed rows fail the request.
	raw := []byte(`{"event": "e", "rows": [{"no_event_data": true}]}`)

	_, _, err := Normalize(raw, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPayloadShape))
}

func TestNormalize_DefaultIPInjection(t *testing.T) {
	raw := []byte(`[{"event": "a"}, {"event": "b", "ip_addr": "10.0.0.1"}]`)

	records, _, err := Normalize(raw, "203.0.113.7")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "203.0.113.7", records[0]["ip_addr"])
	assert.Equal(t, "10.0.0.1", records[1]["ip_addr"])
}

func TestNormalize_NoDefaultIPLeavesRecordUntouched(t *testing.T) {
	records, _, err := Normalize([]byte(`{"event": "a"}`), "")
	require.NoError(t, err)
	assert.False(t, records[0].Has("ip_addr"))
}

func TestNormalize_InvalidShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{{{`},
		{name: "scalar", raw: `42`},
		{name: "string", raw: `"event"`},
		{name: "array of scalars", raw: `[1, 2, 3]`},
		{name: "bulk rows not an array", raw: `{"rows": {"event_data": {}}}`},
		{name: "bulk row not an object", raw: `{"rows": ["x"]}`},
		{name: "bulk row missing event_data", raw: `{"rows": [{"other": 1}]}`},
		{name: "bulk row event_data not an object", raw: `{"rows": [{"event_data": 5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Normalize([]byte(tt.raw), "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidPayloadShape))
		})
	}
}

func TestRecord_EventName(t *testing.T) {
	assert.Equal(t, "unknown", Record{}.EventName())
	assert.Equal(t, "unknown", Record{"event": 7}.EventName())
	assert.Equal(t, "unknown", Record{"event": ""}.EventName())
	assert.Equal(t, "login", Record{"event": "login"}.EventName())
}

func TestRecord_Identity(t *testing.T) {
	id, ok := Record{"principal": "p-1", "distinct_id": "d-1"}.Identity()
	assert.True(t, ok)
	assert.Equal(t, "p-1", id)

	id, ok = Record{"distinct_id": "d-1"}.Identity()
	assert.True(t, ok)
	assert.Equal(t, "d-1", id)

	_, ok = Record{"principal": ""}.Identity()
	assert.False(t, ok)
}
