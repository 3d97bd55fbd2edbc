// Package verifyclient fetches external student verification pages and
// scrapes the roll number out of them.
package verifyclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"
)

var (
	ErrHostNotAllowed = errors.New("verification host not allowed")
	ErrBadLink        = errors.New("verification link rejected")
	ErrNoRoll         = errors.New("no roll number on verification page")
	// ErrUnavailable wraps transport failures and server errors from the
	// verification site. The scanned link may be fine; retrying can help.
	ErrUnavailable = errors.New("verification service unavailable")
)

const (
	maxPageBytes = 1 << 20
	maxRedirects = 3
)

// Ordered from most to least specific. Captures must contain a digit so
// labels like "Number" are never taken for the roll itself.
var rollPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\broll\s*(?:no|number)?\.?\s*[:\-]?\s*(?:<[^>]*>\s*)*([A-Z0-9]*\d[A-Z0-9]*)`),
	regexp.MustCompile(`(?i)\breg(?:ister|istration)?\s*(?:no|number)\.?\s*[:\-]?\s*(?:<[^>]*>\s*)*([A-Z0-9]*\d[A-Z0-9]*)`),
	regexp.MustCompile(`(?i)"roll[A-Za-z_]*"\s*:\s*"([A-Z0-9]{3,20})"`),
	regexp.MustCompile(`\b(\d{2}[A-Z]{2,4}\d{3,4})\b`),
}

// carrier-grade NAT range, not covered by netip.Addr.IsPrivate
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Client downloads verification pages. Only hosts on AllowedHosts are
// fetched; an empty list disables fetching.
type Client struct {
	HTTP         *http.Client
	AllowedHosts []string
}

// New creates a client whose connections refuse loopback, private and
// link-local addresses, whatever the allow-listed name resolves to.
func New(timeout time.Duration, allowedHosts []string) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	dialer := &net.Dialer{Timeout: timeout, Control: refuseInternal}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext

	c := &Client{AllowedHosts: allowedHosts}
	c.HTTP = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: too many redirects", ErrBadLink)
			}
			if !c.allowed(req.URL.Hostname()) {
				return fmt.Errorf("%w: redirect to %s", ErrHostNotAllowed, req.URL.Hostname())
			}
			return nil
		},
	}
	return c
}

// Roll fetches the page at rawURL and extracts the roll number.
func (c *Client) Roll(ctx context.Context, rawURL string) (string, error) {
	page, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	roll, ok := ExtractRoll(page)
	if !ok {
		return "", ErrNoRoll
	}
	return roll, nil
}

// Fetch returns the body of a verification page.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", ErrBadLink, rawURL)
	}
	if !c.allowed(u.Hostname()) {
		return "", fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadLink, err)
	}
	req.Header.Set("Accept", "text/html,application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, ErrHostNotAllowed) || errors.Is(err, ErrBadLink) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("%w: %s", ErrBadLink, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read page: %w", ErrUnavailable, err)
	}
	return string(body), nil
}

func (c *Client) allowed(host string) bool {
	return slices.ContainsFunc(c.AllowedHosts, func(h string) bool {
		return strings.EqualFold(h, host)
	})
}

// refuseInternal runs after DNS resolution, so names pointing at internal
// addresses are caught as well as literal IPs.
func refuseInternal(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !Public(ip) {
		return fmt.Errorf("%w: %s is not a public address", ErrHostNotAllowed, ip)
	}
	return nil
}

// Public reports whether ip is routable on the internet.
func Public(ip netip.Addr) bool {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid(),
		ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsInterfaceLocalMulticast(),
		ip.IsMulticast(),
		sharedAddressSpace.Contains(ip):
		return false
	}
	return true
}

// ExtractRoll runs the patterns in order and returns the first match, upper-cased.
func ExtractRoll(page string) (string, bool) {
	for _, p := range rollPatterns {
		if m := p.FindStringSubmatch(page); len(m) == 2 {
			return strings.ToUpper(m[1]), true
		}
	}
	return "", false
}
