package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryStrategy(t *testing.T) {
	assert.Equal(t, SmartRetry, DefaultRetryStrategy(http.StatusTooManyRequests))
	assert.Equal(t, SmartRetry, DefaultRetryStrategy(http.StatusServiceUnavailable))
	assert.Equal(t, ConservativeRetry, DefaultRetryStrategy(http.StatusInternalServerError))
	assert.Equal(t, ConservativeRetry, DefaultRetryStrategy(http.StatusBadGateway))
	assert.Equal(t, NoRetry, DefaultRetryStrategy(http.StatusBadRequest))
	assert.Equal(t, NoRetry, DefaultRetryStrategy(http.StatusUnauthorized))
}

func TestDoReturnsSuccessResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := New().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

type staticTransport struct {
	status   int
	body     *closeRecorder
	attempts int
}

func (t *staticTransport) RoundTrip(*http.Request) (*http.Response, error) {
	t.attempts++
	return &http.Response{
		StatusCode: t.status,
		Header:     http.Header{},
		Body:       t.body,
	}, nil
}

func TestDoNonRetryableClosesBodyAndSurfacesPayload(t *testing.T) {
	body := &closeRecorder{Reader: strings.NewReader(`{"error":{"message":"unknown model"}}`)}
	transport := &staticTransport{status: http.StatusBadRequest, body: body}
	client := New(WithHTTPClient(&http.Client{Transport: transport}), WithMaxRetries(3))

	req, err := http.NewRequest(http.MethodPost, "http://gateway.local/chat", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, body.closed, "error response body must be closed")
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Contains(t, err.Error(), "unknown model")

	// No retry budget is spent on a non-retryable status.
	assert.Equal(t, 1, transport.attempts)
}

func TestDoNonRetryableEmptyBody(t *testing.T) {
	body := &closeRecorder{Reader: strings.NewReader("")}
	transport := &staticTransport{status: http.StatusNotFound, body: body}
	client := New(WithHTTPClient(&http.Client{Transport: transport}))

	req, err := http.NewRequest(http.MethodGet, "http://gateway.local/none", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, body.closed)
	assert.Equal(t, "HTTP 404", err.Error())
}

func TestReadSnippetTruncates(t *testing.T) {
	long := strings.Repeat("x", 2048)
	snippet := readSnippet(strings.NewReader(long))
	assert.Len(t, snippet, 512)

	assert.Equal(t, "", readSnippet(strings.NewReader("  \n ")))
}
