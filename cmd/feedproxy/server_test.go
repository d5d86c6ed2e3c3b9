package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"feedmap/internal/source"
)

const upstreamFeed = `<?xml version="1.0" encoding="UTF-8"?><rss><channel><item><title>x</title></item></channel></rss>`

func newRelay(t *testing.T, upstream http.Handler) (*httptest.Server, *httptest.Server) {
	t.Helper()
	up := httptest.NewServer(upstream)
	t.Cleanup(up.Close)
	relay := httptest.NewServer(newHandler(source.NewLoader(up.Client(), source.Options{Timeout: 2 * time.Second})))
	t.Cleanup(relay.Close)
	return up, relay
}

func decodeError(t *testing.T, r io.Reader) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body["error"]
}

// TestFetchXML_OK verifies the feed is relayed with XML content type and CORS.
func TestFetchXML_OK(t *testing.T) {
	t.Parallel()

	up, relay := newRelay(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(upstreamFeed))
	}))

	resp, err := http.Get(relay.URL + "/fetch-xml?url=" + up.URL + "/feed.xml")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/xml; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, upstreamFeed, string(b))
}

// TestFetchXML_Latin1 verifies non-UTF-8 feeds are re-encoded.
func TestFetchXML_Latin1(t *testing.T) {
	t.Parallel()

	latin, err := charmap.ISO8859_1.NewEncoder().String(`<?xml version="1.0" encoding="ISO-8859-1"?><rss><item><title>Café</title></item></rss>`)
	require.NoError(t, err)
	up, relay := newRelay(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(latin))
	}))

	resp, err := http.Get(relay.URL + "/fetch-xml?url=" + up.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "Café")
	assert.Contains(t, string(b), `encoding="UTF-8"`)
}

// TestFetchXML_MissingURL verifies the 400 JSON body.
func TestFetchXML_MissingURL(t *testing.T) {
	t.Parallel()

	_, relay := newRelay(t, http.NotFoundHandler())

	resp, err := http.Get(relay.URL + "/fetch-xml")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "URL is required", decodeError(t, resp.Body))
}

// TestFetchXML_UpstreamFailure verifies upstream errors become 500 JSON.
func TestFetchXML_UpstreamFailure(t *testing.T) {
	t.Parallel()

	up, relay := newRelay(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))

	resp, err := http.Get(relay.URL + "/fetch-xml?url=" + up.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, decodeError(t, resp.Body), "http status 404")
}

// TestFetchXML_Methods verifies preflight and rejected methods.
func TestFetchXML_Methods(t *testing.T) {
	t.Parallel()

	_, relay := newRelay(t, http.NotFoundHandler())

	req, err := http.NewRequest(http.MethodOptions, relay.URL+"/fetch-xml", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Headers", "x-requested-with")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "x-requested-with", resp.Header.Get("Access-Control-Allow-Headers"))

	resp, err = http.Post(relay.URL+"/fetch-xml?url=x", "text/plain", bytes.NewBufferString("x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// TestServe_Shutdown verifies serve returns cleanly once its context ends.
func TestServe_Shutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, http.NotFoundHandler()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

// TestRun_ExitCodes verifies usage errors and a clean stop.
func TestRun_ExitCodes(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"-nope"}, &stderr, nil))
	assert.Equal(t, 2, run(context.Background(), []string{"extra"}, &stderr, nil))
	assert.Equal(t, 2, run(context.Background(), []string{"-config", t.TempDir()}, &stderr, nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := filepath.Join(t.TempDir(), "missing.toml")
	assert.Equal(t, 0, run(ctx, []string{"-config", cfg, "-listen", "127.0.0.1:0", "-log-level", "error"}, &stderr, nil))
}
