// Package connect holds the connection to the DFI API: credentials, base URL,
// request headers, retries and response validation. Every service in the
// client sends its requests through a *Connect.
package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/generalsystem/dfi"
	"github.com/pkg/errors"
)

// Defaults for a new Connect.
const (
	DefaultBaseURL      = "https://api.prod.generalsystem.com"
	DefaultQueryTimeout = 60 * time.Second
	DefaultMaxRetries   = 3
	DefaultMaxBackoff   = 2 * time.Minute
)

// Connect describes a connection to the DFI API. It is safe for concurrent
// use.
type Connect struct {
	token        string
	baseURL      string
	queryTimeout time.Duration
	progressBar  bool
	userAgent    string

	client     *http.Client
	maxRetries int
	maxBackoff time.Duration

	log   dfi.Logger
	stats dfi.Statter

	randMu sync.Mutex
	rand   *rand.Rand
}

// Option is a functional option type for Connect.
type Option func(c *Connect) error

// OptToken sets the API token sent as a bearer token.
func OptToken(token string) Option {
	return func(c *Connect) error {
		c.token = token
		return nil
	}
}

// OptBaseURL sets the URL every endpoint is relative to.
func OptBaseURL(base string) Option {
	return func(c *Connect) error {
		if _, err := url.Parse(base); err != nil {
			return errors.Wrapf(dfi.ErrInputValue, "parsing base url '%s': %v", base, err)
		}
		c.baseURL = strings.TrimRight(base, "/")
		return nil
	}
}

// OptQueryTimeout sets how long to wait for the API to start responding
// before dropping a request. A running stream is not interrupted.
func OptQueryTimeout(d time.Duration) Option {
	return func(c *Connect) error {
		c.queryTimeout = d
		return nil
	}
}

// OptProgressBar turns on progress reporting while query results stream in.
func OptProgressBar(on bool) Option {
	return func(c *Connect) error {
		c.progressBar = on
		return nil
	}
}

// OptRetries sets how many times a rate limited or failed request is retried.
func OptRetries(n int) Option {
	return func(c *Connect) error {
		if n < 0 {
			return errors.Wrapf(dfi.ErrInputValue, "retries must be >= 0, got %d", n)
		}
		c.maxRetries = n
		return nil
	}
}

// OptMaxBackoff bounds the time waited between two attempts of a request.
func OptMaxBackoff(d time.Duration) Option {
	return func(c *Connect) error {
		c.maxBackoff = d
		return nil
	}
}

// OptHTTPClient replaces the http.Client used to send requests. The query
// timeout is not applied to a client set this way.
func OptHTTPClient(client *http.Client) Option {
	return func(c *Connect) error {
		c.client = client
		return nil
	}
}

// OptLogger sets the logger.
func OptLogger(l dfi.Logger) Option {
	return func(c *Connect) error {
		c.log = l
		return nil
	}
}

// OptStatter sets the stats collector.
func OptStatter(s dfi.Statter) Option {
	return func(c *Connect) error {
		c.stats = s
		return nil
	}
}

// OptUserAgent overrides the User-Agent header.
func OptUserAgent(ua string) Option {
	return func(c *Connect) error {
		c.userAgent = ua
		return nil
	}
}

// New returns a Connect configured by opts.
func New(opts ...Option) (*Connect, error) {
	c := &Connect{
		baseURL:      DefaultBaseURL,
		queryTimeout: DefaultQueryTimeout,
		userAgent:    "dfi-go/" + dfi.Version,
		maxRetries:   DefaultMaxRetries,
		maxBackoff:   DefaultMaxBackoff,
		log:          dfi.NopLogger{},
		stats:        dfi.NopStatter{},
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	if c.client == nil {
		c.client = newHTTPClient(c.queryTimeout)
	}
	return c, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}

// BaseURL returns the URL endpoints are relative to.
func (c *Connect) BaseURL() string { return c.baseURL }

// QueryTimeout returns the time allowed for the API to start responding.
func (c *Connect) QueryTimeout() time.Duration { return c.queryTimeout }

// ProgressBar reports whether query progress should be displayed.
func (c *Connect) ProgressBar() bool { return c.progressBar }

// Logger returns the connection's logger.
func (c *Connect) Logger() dfi.Logger { return c.log }

// Statter returns the connection's stats collector.
func (c *Connect) Statter() dfi.Statter { return c.stats }

// String never includes the token.
func (c *Connect) String() string {
	return fmt.Sprintf("Connect(api_token=<***>, base_url=%s, query_timeout=%v, progress_bar=%v)", c.baseURL, c.queryTimeout, c.progressBar)
}

// Headers returns the headers sent with a request. Streaming requests accept
// text/event-stream, synchronous ones send and accept JSON.
func (c *Connect) Headers(stream bool) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("User-Agent", c.userAgent)
	if stream {
		h.Set("Accept", "text/event-stream")
	} else {
		h.Set("Accept", "application/json")
		h.Set("Content-Type", "application/json")
	}
	return h
}

// Request describes a single call to the API.
type Request struct {
	Method   string
	Endpoint string
	Stream   bool
	Params   url.Values
	// Payload is JSON encoded as the request body when non-nil.
	Payload interface{}
	// Header values override the defaults chosen by Stream.
	Header http.Header
}

// Do sends the request and returns the response once its status is 2xx. The
// caller must close the response body. A non-2xx response is returned as a
// *dfi.ResponseError.
//
// Responses with status 429, 503 or any other 5xx, and transport errors, are
// retried with exponential backoff. A 429 with a Retry-After header waits
// that many seconds instead. Streaming POSTs are never retried because the
// query may already be running.
func (c *Connect) Do(ctx context.Context, req Request) (*http.Response, error) {
	var body []byte
	if req.Payload != nil {
		var err error
		if body, err = json.Marshal(req.Payload); err != nil {
			return nil, errors.Wrap(err, "marshalling payload")
		}
	}
	header := c.Headers(req.Stream)
	if body != nil && header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	for k := range req.Header {
		header.Set(k, req.Header.Get(k))
	}
	u := c.baseURL + "/" + strings.TrimLeft(req.Endpoint, "/")
	full := u
	if len(req.Params) > 0 {
		full += "?" + req.Params.Encode()
	}
	maxRetries := c.maxRetries
	if req.Stream && req.Method == http.MethodPost {
		maxRetries = 0
	}
	tags := []string{"method:" + req.Method}

	for retry := 0; ; {
		var sleepTime time.Duration
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, full, bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "building request")
		}
		httpReq.Header = header.Clone()
		c.log.Debugf("%s %s stream=%v params=%v headers=%v", req.Method, u, req.Stream, req.Params, redacted(header))

		start := time.Now()
		resp, err := c.client.Do(httpReq)
		c.stats.Count("dfi.requests", 1, 1.0, tags...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "sending request")
			}
			err = errors.Wrap(err, "sending request")
			sleepTime = c.backoff(retry)
		} else {
			c.stats.Timing("dfi.request.latency", time.Since(start), 1.0, tags...)
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				c.log.Debugf("%s %s: %s", req.Method, u, resp.Status)
				return resp, nil

			case resp.StatusCode == http.StatusTooManyRequests:
				err = c.responseError(resp, u, header, req)
				if secs, _ := strconv.Atoi(resp.Header.Get("Retry-After")); secs > 0 {
					sleepTime = time.Duration(secs) * time.Second
				} else {
					sleepTime = c.backoff(retry)
				}

			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				// client errors are never retried
				err = c.responseError(resp, u, header, req)
				c.stats.Count("dfi.failures", 1, 1.0, "status:4xx")
				c.log.Printf("request failed: %v", err)
				return nil, err

			default:
				err = c.responseError(resp, u, header, req)
				sleepTime = c.backoff(retry)
			}
		}

		if retry >= maxRetries {
			c.stats.Count("dfi.failures", 1, 1.0, statusClass(resp))
			c.log.Printf("request failed: %v", err)
			if retry == 0 {
				return nil, err
			}
			return nil, errors.Wrapf(err, "max retries (%d) exceeded", maxRetries)
		}
		if sleepTime > c.maxBackoff {
			c.stats.Count("dfi.failures", 1, 1.0, statusClass(resp))
			return nil, errors.Wrapf(err, "max backoff (%s) time exceeded", c.maxBackoff)
		}
		retry++
		c.stats.Count("dfi.retries", 1, 1.0, tags...)
		c.log.Printf("request failed with: '%v', retrying %d after %v", err, retry, sleepTime)
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "waiting to retry")
		case <-time.After(sleepTime):
		}
	}
}

func (c *Connect) backoff(retry int) time.Duration {
	c.randMu.Lock()
	jitter := time.Duration(c.rand.Intn(1000)) * time.Millisecond
	c.randMu.Unlock()
	return time.Duration(1<<uint(retry))*time.Second + jitter
}

// responseError reads and closes the body of a failed response.
func (c *Connect) responseError(resp *http.Response, u string, header http.Header, req Request) error {
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		body = []byte(fmt.Sprintf("reading response body: %v", err))
	}
	return dfi.NewResponseError(resp.StatusCode, strings.TrimSpace(string(body)), u, header, req.Params, req.Payload)
}

func statusClass(resp *http.Response) string {
	if resp == nil {
		return "status:transport"
	}
	return fmt.Sprintf("status:%dxx", resp.StatusCode/100)
}

func redacted(h http.Header) http.Header {
	r := h.Clone()
	if r.Get("Authorization") != "" {
		r.Set("Authorization", dfi.RedactedAuthorization)
	}
	return r
}

// Get sends a GET request.
func (c *Connect) Get(ctx context.Context, endpoint string, stream bool, params url.Values) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint, Stream: stream, Params: params})
}

// Post sends a POST request with payload as its JSON body.
func (c *Connect) Post(ctx context.Context, endpoint string, stream bool, params url.Values, payload interface{}) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Stream: stream, Params: params, Payload: payload})
}

// Put sends a PUT request with payload as its JSON body.
func (c *Connect) Put(ctx context.Context, endpoint string, stream bool, params url.Values, payload interface{}) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Endpoint: endpoint, Stream: stream, Params: params, Payload: payload})
}

// Patch sends a PATCH request with payload as its JSON body.
func (c *Connect) Patch(ctx context.Context, endpoint string, stream bool, params url.Values, payload interface{}) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Endpoint: endpoint, Stream: stream, Params: params, Payload: payload})
}

// Delete sends a DELETE request, with payload as its JSON body if non-nil.
func (c *Connect) Delete(ctx context.Context, endpoint string, stream bool, params url.Values, payload interface{}) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint, Stream: stream, Params: params, Payload: payload})
}

// DoJSON sends a synchronous request and decodes the JSON response into v.
// A nil v discards the body.
func (c *Connect) DoJSON(ctx context.Context, method, endpoint string, params url.Values, payload, v interface{}) error {
	resp, err := c.Do(ctx, Request{Method: method, Endpoint: endpoint, Params: params, Payload: payload})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if v == nil {
		_, err = io.Copy(ioutil.Discard, resp.Body)
		return errors.Wrap(err, "draining response")
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return errors.Wrapf(err, "decoding %s %s response", method, endpoint)
	}
	return nil
}

// GetJSON sends a synchronous GET and decodes the response into v.
func (c *Connect) GetJSON(ctx context.Context, endpoint string, params url.Values, v interface{}) error {
	return c.DoJSON(ctx, http.MethodGet, endpoint, params, nil, v)
}

// PostJSON sends a synchronous POST and decodes the response into v.
func (c *Connect) PostJSON(ctx context.Context, endpoint string, params url.Values, payload, v interface{}) error {
	return c.DoJSON(ctx, http.MethodPost, endpoint, params, payload, v)
}

// PutJSON sends a synchronous PUT and decodes the response into v.
func (c *Connect) PutJSON(ctx context.Context, endpoint string, params url.Values, payload, v interface{}) error {
	return c.DoJSON(ctx, http.MethodPut, endpoint, params, payload, v)
}

// PatchJSON sends a synchronous PATCH and decodes the response into v.
func (c *Connect) PatchJSON(ctx context.Context, endpoint string, params url.Values, payload, v interface{}) error {
	return c.DoJSON(ctx, http.MethodPatch, endpoint, params, payload, v)
}

// DeleteJSON sends a synchronous DELETE and decodes the response into v.
func (c *Connect) DeleteJSON(ctx context.Context, endpoint string, params url.Values, payload, v interface{}) error {
	return c.DoJSON(ctx, http.MethodDelete, endpoint, params, payload, v)
}

// GetText sends a synchronous GET and returns the response body as a string.
func (c *Connect) GetText(ctx context.Context, endpoint string, params url.Values) (string, error) {
	resp, err := c.Get(ctx, endpoint, false, params)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	bs, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading response")
	}
	return strings.TrimSpace(string(bs)), nil
}

// Params builds url.Values from pairs of keys and values, skipping nil
// values, nil pointers and empty strings.
func Params(kv ...interface{}) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch val := kv[i+1].(type) {
		case nil:
		case string:
			if val != "" {
				v.Set(key, val)
			}
		case *string:
			if val != nil && *val != "" {
				v.Set(key, *val)
			}
		case *int:
			if val != nil {
				v.Set(key, strconv.Itoa(*val))
			}
		case *bool:
			if val != nil {
				v.Set(key, strconv.FormatBool(*val))
			}
		case *time.Time:
			if val != nil {
				v.Set(key, val.UTC().Format(time.RFC3339Nano))
			}
		case time.Time:
			if !val.IsZero() {
				v.Set(key, val.UTC().Format(time.RFC3339Nano))
			}
		default:
			v.Set(key, fmt.Sprintf("%v", val))
		}
	}
	return v
}
