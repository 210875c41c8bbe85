package gateway

import (
	"bytes"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackwise/edgeauth"
)

// A listener that accepts connections and never answers must end in the
// same 503 body as a refused connection.
func TestSilentUpstreamAnswersServiceUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	f := newFixture(t, jsonOK(`{}`), func(c *Config) {
		c.Upstreams.Defects = "http://" + ln.Addr().String()
		c.Timeout = 300 * time.Millisecond
	})

	req := httptest.NewRequest(http.MethodGet, "/defects/", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	start := time.Now()
	rec := f.do(req)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t,
		`{"success":false,"error":{"code":"SERVICE_UNAVAILABLE","message":"Service temporarily unavailable"}}`,
		rec.Body.String())
}

func TestClassifyTransportError(t *testing.T) {
	timeout := classifyTransportError(&net.OpError{Op: "dial", Err: timeoutErr{}})
	assert.True(t, errors.Is(timeout, edgeauth.ErrUpstreamTimeout))
	assert.Equal(t, "SERVICE_UNAVAILABLE", edgeauth.ErrorCode(timeout))

	refused := classifyTransportError(errors.New("connection refused"))
	assert.True(t, errors.Is(refused, edgeauth.ErrUpstreamUnavailable))
	assert.False(t, errors.Is(refused, edgeauth.ErrUpstreamTimeout))
	assert.Equal(t, "SERVICE_UNAVAILABLE", edgeauth.ErrorCode(refused))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestEncodedSeparatorsSurviveTheHop(t *testing.T) {
	seen := make(chan string, 1)
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		seen <- r.URL.EscapedPath()
		w.WriteHeader(http.StatusNoContent)
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/defects/a%2Fb/comments", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	rec := f.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/defects/a%2Fb/comments", <-seen)
}

func TestRouteURLKeepsEscapedPath(t *testing.T) {
	rt, err := NewRouteTable(testUpstreams())
	require.NoError(t, err)

	route, err := rt.Resolve("/defects/a%2Fb")
	require.NoError(t, err)
	assert.Equal(t, "http://defects:8003/defects/a%2Fb?x=1", route.URL("x=1"))

	route, err = rt.Resolve("/defects/plain")
	require.NoError(t, err)
	assert.Equal(t, "http://defects:8003/defects/plain", route.URL(""))
}

func TestOversizeJSONStreamsUnmodified(t *testing.T) {
	prev := maxJSONBody
	maxJSONBody = 64
	t.Cleanup(func() { maxJSONBody = prev })

	body := `{"items":[` + strings.Repeat(`"xxxxxxxxxx",`, 20) + `"end"]}`
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/reports/big", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"data"`)
}

func TestUpstreamFailureLogsSubject(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	f := newFixture(t, jsonOK(`{}`), func(c *Config) { c.Upstreams.Defects = deadURL })
	req := httptest.NewRequest(http.MethodGet, "/defects/", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t))

	rec := f.do(req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, buf.String(), `"message":"upstream.failed"`)
	assert.Contains(t, buf.String(), `"subject":"alice"`)
	assert.Contains(t, buf.String(), `"timeout":false`)
}
