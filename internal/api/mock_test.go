package api

import (
	"io"
	"net/url"
	"strings"
	"sync"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/bogdanfinn/tls-client/bandwidth"
)

// MockResponseBody is a ReadCloser that simulates reading response data
type MockResponseBody struct {
	data   []byte
	pos    int
	closed bool
}

// NewMockResponseBody creates a new MockResponseBody with the given data
func NewMockResponseBody(data []byte) *MockResponseBody {
	return &MockResponseBody{data: data, pos: 0}
}

// Read implements the io.Reader interface
func (m *MockResponseBody) Read(p []byte) (n int, err error) {
	if m.pos >= len(m.data) {
		return 0, io.EOF
	}
	n = copy(p, m.data[m.pos:])
	m.pos += n
	return n, nil
}

// Close implements the io.Closer interface
func (m *MockResponseBody) Close() error {
	m.closed = true
	return nil
}

// MockResponse is one canned answer of MockHttpClient
type MockResponse struct {
	Status int
	Body   string
	Err    error
	// Reader replaces Body, e.g. with a pipe that streams slowly
	Reader io.ReadCloser
}

// MockHttpClient is a mock implementation of tls_client.HttpClient for testing.
// Responses are handed out in order; the last one repeats.
type MockHttpClient struct {
	mu        sync.Mutex
	Responses []MockResponse
	Requests  []*fhttp.Request
	Bodies    []string
	calls     int
}

// NewMockHttpClient creates a MockHttpClient answering every request with body
func NewMockHttpClient(body string, statusCode int) *MockHttpClient {
	return &MockHttpClient{Responses: []MockResponse{{Status: statusCode, Body: body}}}
}

// NewMockHttpClientWithError creates a MockHttpClient that returns an error
func NewMockHttpClientWithError(err error) *MockHttpClient {
	return &MockHttpClient{Responses: []MockResponse{{Err: err}}}
}

// LastRequest returns the most recent request
func (m *MockHttpClient) LastRequest() *fhttp.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return nil
	}
	return m.Requests[len(m.Requests)-1]
}

// Do implements the tls_client.HttpClient interface
func (m *MockHttpClient) Do(req *fhttp.Request) (*fhttp.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	sent := ""
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		sent = string(data)
	}
	m.Bodies = append(m.Bodies, sent)

	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++

	r := m.Responses[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	var body io.ReadCloser = NewMockResponseBody([]byte(r.Body))
	if r.Reader != nil {
		body = r.Reader
	}
	return &fhttp.Response{
		StatusCode: r.Status,
		Body:       body,
		Header:     make(fhttp.Header),
		Request:    req,
	}, nil
}

// Get implements the tls_client.HttpClient interface
func (m *MockHttpClient) Get(u string) (*fhttp.Response, error) {
	req, _ := fhttp.NewRequest(fhttp.MethodGet, u, nil)
	return m.Do(req)
}

// Head implements the tls_client.HttpClient interface
func (m *MockHttpClient) Head(u string) (*fhttp.Response, error) {
	req, _ := fhttp.NewRequest(fhttp.MethodHead, u, nil)
	return m.Do(req)
}

// Post implements the tls_client.HttpClient interface
func (m *MockHttpClient) Post(u, contentType string, body io.Reader) (*fhttp.Response, error) {
	req, _ := fhttp.NewRequest(fhttp.MethodPost, u, body)
	req.Header.Set("Content-Type", contentType)
	return m.Do(req)
}

// GetCookies implements the tls_client.HttpClient interface
func (m *MockHttpClient) GetCookies(u *url.URL) []*fhttp.Cookie {
	return nil
}

// SetCookies implements the tls_client.HttpClient interface
func (m *MockHttpClient) SetCookies(u *url.URL, cookies []*fhttp.Cookie) {}

// SetCookieJar implements the tls_client.HttpClient interface
func (m *MockHttpClient) SetCookieJar(jar fhttp.CookieJar) {}

// GetCookieJar implements the tls_client.HttpClient interface
func (m *MockHttpClient) GetCookieJar() fhttp.CookieJar {
	return nil
}

// SetProxy implements the tls_client.HttpClient interface
func (m *MockHttpClient) SetProxy(proxyUrl string) error {
	return nil
}

// GetProxy implements the tls_client.HttpClient interface
func (m *MockHttpClient) GetProxy() string {
	return ""
}

// SetFollowRedirect implements the tls_client.HttpClient interface
func (m *MockHttpClient) SetFollowRedirect(followRedirect bool) {}

// GetFollowRedirect implements the tls_client.HttpClient interface
func (m *MockHttpClient) GetFollowRedirect() bool {
	return false
}

// CloseIdleConnections implements the tls_client.HttpClient interface
func (m *MockHttpClient) CloseIdleConnections() {}

// GetBandwidthTracker implements the tls_client.HttpClient interface
func (m *MockHttpClient) GetBandwidthTracker() bandwidth.BandwidthTracker {
	return nil
}

// sse joins event blocks into a text/event-stream body
func sse(events ...string) string {
	return strings.Join(events, "\n\n") + "\n\n"
}
