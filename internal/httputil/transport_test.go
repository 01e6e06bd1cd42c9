package httputil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnit_Transport_SetsUserAgent(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
	}))
	t.Cleanup(server.Close)

	client := &http.Client{Transport: &Transport{UserAgent: "cinecal-test"}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "cinecal-test", got.Load())

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "explicit")
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "explicit", got.Load())
}

func TestUnit_NewClient_Timeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewClient(0).Timeout)
	assert.Equal(t, time.Second, NewClient(time.Second).Timeout)
}

func TestUnit_MemoTransport(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("hello " + r.Method))
	}))
	t.Cleanup(server.Close)

	var hits []bool
	memo := NewMemoTransport(http.DefaultTransport, 10, time.Minute).OnLookup(func(_ string, hit bool) {
		hits = append(hits, hit)
	})
	client := &http.Client{Transport: memo}

	for range 2 {
		resp, err := client.Get(server.URL + "/a")
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, "hello GET", string(body))
	}
	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, []bool{false, true}, hits)

	for range 2 {
		resp, err := client.Get(server.URL + "/missing")
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.EqualValues(t, 3, calls.Load(), "failures are not remembered")

	for range 2 {
		resp, err := client.Post(server.URL+"/a", "text/plain", nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	assert.EqualValues(t, 5, calls.Load(), "only GET is remembered")
}
