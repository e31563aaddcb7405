package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/domainpay/internal/observability/metrics"
)

const maxResponseBytes = 1 << 20

// Client is the shared JSON-over-HTTP plumbing of the collaborator clients.
// It holds no per-call state.
type Client struct {
	Name    string
	BaseURL string
	HTTP    *http.Client
	Timeout time.Duration
	// Decorate sets authentication headers on every request.
	Decorate func(req *http.Request)
}

func NewClient(name, baseURL string, timeout time.Duration, decorate func(*http.Request)) *Client {
	return &Client{
		Name:     name,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{},
		Timeout:  timeout,
		Decorate: decorate,
	}
}

// Request describes one call.
type Request struct {
	Op      string
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Timeout time.Duration
	// Header is applied after Decorate.
	Header http.Header
}

// Do executes req and decodes a 2xx JSON body into out. Non-2xx responses
// and transport failures come back as *Error with the raw body attached so
// callers can refine the classification.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	err := c.do(ctx, req, out)
	metrics.Providers().ObserveCall(c.Name, req.Op, outcomeLabel(err), time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, req Request, out any) error {
	target := c.BaseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return NewError(CategoryInternal, c.Name, req.Op, "encode request", err)
		}
		body = bytes.NewReader(payload)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return NewError(CategoryInternal, c.Name, req.Op, "build request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.Decorate != nil {
		c.Decorate(httpReq)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return c.transportError(ctx, req.Op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return c.transportError(ctx, req.Op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := NewError(categoryForStatus(resp.StatusCode), c.Name, req.Op, summarize(raw), nil)
		perr.StatusCode = resp.StatusCode
		perr.Body = raw
		return perr
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			perr := NewError(CategoryBadData, c.Name, req.Op, "decode response", err)
			perr.StatusCode = resp.StatusCode
			perr.Body = raw
			return perr
		}
	}
	return nil
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(CategoryTimeout, c.Name, op, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(CategoryTimeout, c.Name, op, "request timed out", err)
	}
	return NewError(CategoryOutage, c.Name, op, "request failed", err)
}

func categoryForStatus(status int) Category {
	switch {
	case status == http.StatusTooManyRequests:
		return CategoryRateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return CategoryTimeout
	case status >= 500:
		return CategoryOutage
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuthentication
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusConflict:
		return CategoryConflict
	default:
		return CategoryRejected
	}
}

func summarize(raw []byte) string {
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(CategoryOf(err))
}
