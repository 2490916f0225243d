package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopy-project/canopy/internal/canopyerr"
)

func TestHTTPTransportDecodesSuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"hello": "world"})
	}))
	defer ts.Close()

	tr := newHTTPTransport(ts.URL, http.DefaultClient)
	var out map[string]string
	err := tr.do(context.Background(), http.MethodGet, "/anything", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "world", out["hello"])
}

func TestHTTPTransportTranslatesErrorEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(canopyerr.Envelope{Code: canopyerr.CodeRepoNotFound, Message: "repo not found: x"})
	}))
	defer ts.Close()

	tr := newHTTPTransport(ts.URL, http.DefaultClient)
	err := tr.do(context.Background(), http.MethodGet, "/anything", nil, nil)
	require.Error(t, err)
	assert.Equal(t, canopyerr.CodeRepoNotFound, canopyerr.GetCode(err))
}

func TestHTTPTransportWrapsConnectionFailureAsConnectionError(t *testing.T) {
	tr := newHTTPTransport("http://127.0.0.1:1", http.DefaultClient)
	err := tr.do(context.Background(), http.MethodGet, "/x", nil, nil)
	require.Error(t, err)
	assert.Equal(t, canopyerr.CodeConnectionError, canopyerr.GetCode(err))
}
