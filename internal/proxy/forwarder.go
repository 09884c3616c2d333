// Package proxy forwards a gateway request to its matched upstream.
// Grounded on original_source's proxy/service.py forward_request: the
// upstream body is read fully before the response is written back
// (buffered, not streamed — see SPEC_FULL.md §13), and on the teacher's
// reverse-proxy Director, which sets the X-Forwarded-* header trio
// before dispatch.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/portcall/gateway/internal/errs"
)

// Forwarder issues upstream requests with a bounded client timeout and
// full-body buffering.
type Forwarder struct {
	client *http.Client
}

// New builds a Forwarder whose upstream calls time out after timeout.
// Redirects are followed, matching the original gateway's requests-based
// forwarder (requests.Session follows redirects by default).
func New(timeout time.Duration) *Forwarder {
	return &Forwarder{client: &http.Client{Timeout: timeout}}
}

// Response is the fully-buffered upstream reply.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Forward rewrites r's destination to targetURL+path and replays its
// method, headers (minus hop-by-hop and Host) and body, returning the
// upstream's full response.
func (f *Forwarder) Forward(ctx context.Context, r *http.Request, targetURL, path string) (*Response, error) {
	var body io.Reader
	if r.Body != nil {
		buf, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("proxy: read request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	dest := strings.TrimRight(targetURL, "/") + path
	if r.URL.RawQuery != "" {
		dest += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, dest, body)
	if err != nil {
		return nil, fmt.Errorf("proxy: build upstream request: %w", err)
	}
	copyHeaders(req.Header, r.Header)
	setForwardingHeaders(req, r)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &errs.UpstreamTransportError{TargetURL: dest, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("proxy: read upstream response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header.Clone(), Body: respBody}, nil
}

var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Host",
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		skip := false
		for _, h := range hopByHopHeaders {
			if strings.EqualFold(k, h) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// setForwardingHeaders mirrors the teacher's reverse-proxy Director: it
// appends to (rather than overwrites) any existing X-Forwarded-For chain,
// and always sets X-Forwarded-Host/-Proto from the original request.
func setForwardingHeaders(req, orig *http.Request) {
	clientIP := orig.RemoteAddr
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}

	if prior := orig.Header.Get("X-Forwarded-For"); prior != "" {
		req.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	req.Header.Set("X-Forwarded-Host", orig.Host)
	proto := "http"
	if orig.TLS != nil {
		proto = "https"
	}
	req.Header.Set("X-Forwarded-Proto", proto)
}
