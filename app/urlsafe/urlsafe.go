// Package urlsafe validates user-supplied schedule URLs and performs bounded
// fetches against them. Every outbound request for a third-party feed goes
// through this package so that attacker-controlled URLs cannot reach internal
// addresses or exhaust memory with oversized responses.
package urlsafe

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError marks a URL problem the caller can fix. The API layer maps
// these to HTTP 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// Normalize validates a user-supplied URL and returns a canonical form
// (lowercased scheme and host, no trailing slash, no fragment). It rejects
// non-http(s) schemes, loopback/private/link-local hosts, and non-standard
// ports.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", validationErrorf("URL is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", validationErrorf("invalid URL: %s", raw)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", validationErrorf("unsupported URL scheme '%s': only http and https are allowed", u.Scheme)
	}
	u.Scheme = scheme

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", validationErrorf("URL has no host: %s", raw)
	}

	if err := checkHost(host); err != nil {
		return "", err
	}

	if port := u.Port(); port != "" && port != "80" && port != "443" {
		return "", validationErrorf("port %s is not allowed: only 80 and 443 are permitted", port)
	}

	// Rebuild host preserving an explicit allowed port.
	if port := u.Port(); port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}

	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String(), nil
}

// checkHost rejects hostnames and literal IPs that point at internal
// infrastructure. Hostname DNS resolution is re-checked at dial time by the
// Client, so a hostname passing here is not yet trusted.
func checkHost(host string) error {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return validationErrorf("host '%s' is not allowed", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return validationErrorf("IP address %s is not allowed: private and loopback ranges are blocked", host)
		}
	}

	return nil
}

func isBlockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

// Mask produces a redacted form of a URL safe for logs and API responses:
// scheme and host are kept, the path is truncated, and query parameters and
// credentials are dropped entirely.
func Mask(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "(invalid URL)"
	}

	path := u.Path
	if runes := []rune(path); len(runes) > 24 {
		path = string(runes[:24]) + "…"
	}

	return u.Scheme + "://" + u.Hostname() + path
}
