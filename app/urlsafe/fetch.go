package urlsafe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	DefaultMaxBodyBytes = 2 << 20 // 2 MiB
	DefaultMaxRedirects = 5
	DefaultTimeout      = 30 * time.Second
)

// FetchError describes a failed feed fetch. ClientFault is true when the
// failure is attributable to the supplied URL (size limit, redirect limit,
// blocked address) rather than to this service.
type FetchError struct {
	msg         string
	ClientFault bool
}

func (e *FetchError) Error() string {
	return e.msg
}

func fetchErrorf(clientFault bool, format string, args ...any) error {
	return &FetchError{msg: fmt.Sprintf(format, args...), ClientFault: clientFault}
}

// Result is a successfully fetched feed body.
type Result struct {
	Body        []byte
	ContentType string
}

// Client performs bounded HTTP GETs against gate-approved URLs.
type Client struct {
	httpClient   *http.Client
	maxBodyBytes int64
	userAgent    string
}

func NewClient(timeout time.Duration, maxBodyBytes int64, maxRedirects int, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	if maxRedirects <= 0 {
		maxRedirects = DefaultMaxRedirects
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}

	transport := &http.Transport{
		// Resolve ourselves and re-check every address so a hostname that
		// passed Normalize cannot rebind to an internal IP at connect time.
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}

			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}

			for _, a := range addrs {
				if isBlockedIP(a.IP) {
					return nil, fetchErrorf(true, "host %s resolves to a blocked address", host)
				}
			}

			return dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].IP.String(), port))
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fetchErrorf(true, "too many redirects (limit %d)", maxRedirects)
			}
			// Each redirect target must pass the gate again.
			if _, err := Normalize(req.URL.String()); err != nil {
				return fetchErrorf(true, "redirect target rejected: %v", err)
			}
			return nil
		},
	}

	return &Client{
		httpClient:   httpClient,
		maxBodyBytes: maxBodyBytes,
		userAgent:    userAgent,
	}
}

// Fetch performs a bounded GET against a URL that has already passed
// Normalize. The body is capped at the configured ceiling; exceeding it is a
// client fault, not a partial success.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Surface typed errors raised inside the transport or redirect check.
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, fetchErrorf(false, "failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fetchErrorf(true, "HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return nil, fetchErrorf(false, "failed to read response body: %v", err)
	}

	if int64(len(body)) > c.maxBodyBytes {
		return nil, fetchErrorf(true, "response exceeds size limit of %d bytes", c.maxBodyBytes)
	}

	return &Result{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
