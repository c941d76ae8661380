package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/pkg/errors"
)

func TestTrack_WireFormat(t *testing.T) {
	var path string
	var batch []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewHTTPTrackingSink(server.URL, "project-token")
	err := s.Track(context.Background(), "video_viewed", map[string]interface{}{
		"video_id":    "v1",
		"distinct_id": "2vxsx-fae",
	})
	require.NoError(t, err)

	assert.Equal(t, "/track", path)
	require.Len(t, batch, 1)
	assert.Equal(t, "video_viewed", batch[0]["event"])

	props, ok := batch[0]["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "project-token", props["token"])
	assert.Equal(t, "v1", props["video_id"])
	assert.NotEmpty(t, props["time"])
	assert.NotEmpty(t, props["$insert_id"])
}

func TestTrack_DoesNotMutateCallerProperties(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewHTTPTrackingSink(server.URL, "project-token")
	props := map[string]interface{}{"video_id": "v1"}
	require.NoError(t, s.Track(context.Background(), "e", props))

	assert.NotContains(t, props, "token")
	assert.NotContains(t, props, "$insert_id")
}

func TestSetProfile_WireFormat(t *testing.T) {
	var batch []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewHTTPTrackingSink(server.URL, "project-token")
	err := s.SetProfile(context.Background(), "2vxsx-fae", "203.0.113.7", map[string]interface{}{
		"plan": "free",
	})
	require.NoError(t, err)

	require.Len(t, batch, 1)
	assert.Equal(t, "project-token", batch[0]["$token"])
	assert.Equal(t, "2vxsx-fae", batch[0]["$distinct_id"])
	assert.Equal(t, "203.0.113.7", batch[0]["$ip"])

	set, ok := batch[0]["$set"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "free", set["plan"])
}

func TestSetProfile_OmitsEmptyIP(t *testing.T) {
	var batch []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewHTTPTrackingSink(server.URL, "project-token")
	require.NoError(t, s.SetProfile(context.Background(), "2vxsx-fae", "", nil))

	require.Len(t, batch, 1)
	assert.NotContains(t, batch[0], "$ip")
}

func TestTrack_UpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewHTTPTrackingSink(server.URL, "project-token")
	err := s.Track(context.Background(), "e", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSinkDelivery))
	assert.Equal(t, http.StatusServiceUnavailable, errors.ToHTTPStatus(err))
}
