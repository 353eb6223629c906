package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/services/northpole/api"
)

func newFakeServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&api.StatusJson{
			PerClass:    map[string]api.ClassCounts{"reindeer": {Ready: 9}, "elves": {Vacationing: 2}},
			SystemState: "idle",
		})
	})
	mux.HandleFunc("/api/dispatch", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("class") == "gnomes" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(&api.ErrorResponse{Error: "UnknownWorkerClass", Msg: "uh, what kind of job is this?", Code: "INVALID_PARAMETER"})
			return
		}
		json.NewEncoder(w).Encode(&api.DispatchResponse{Dispatched: true, Class: "reindeer"})
	})
	mux.HandleFunc("/api/reset", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGetStatus(t *testing.T) {
	c := NewClient(newFakeServer(t).URL+"/", 1000)
	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, status.PerClass["reindeer"].Ready)
	assert.Equal(t, "idle", status.SystemState)
}

func TestServerErrorBecomesKerror(t *testing.T) {
	c := NewClient(newFakeServer(t).URL, 1000)
	resp, err := c.Dispatch(context.Background(), "reindeer")
	require.NoError(t, err)
	assert.True(t, resp.Dispatched)

	_, err = c.Dispatch(context.Background(), "gnomes")
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_INVALID_PARAMETER))
	ke, ok := err.(*kerror.Kerror)
	require.True(t, ok)
	assert.Equal(t, "UnknownWorkerClass", ke.Type)

	_, err = c.Reset(context.Background())
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_UNKNOWN))
}

func TestUnreachable(t *testing.T) {
	server := newFakeServer(t)
	c := NewClient(server.URL, 1000)
	server.Close()
	_, err := c.GetStatus(context.Background())
	assert.True(t, kerror.IsErrorCode(err, kerror.EC_NETWORK_ERR))
}
