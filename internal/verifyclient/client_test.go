package verifyclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRoll(t *testing.T) {
	cases := map[string]string{
		`<td>Roll No:</td><td><b>23cs001</b></td>`: "23CS001",
		`Register Number - 21EC1042`:               "21EC1042",
		`{"name":"Asha","rollNumber":"22ME017"}`:   "22ME017",
		`Student 24IT0099 is enrolled for 2025-26`: "24IT0099",
	}
	for page, want := range cases {
		got, ok := ExtractRoll(page)
		require.True(t, ok, page)
		assert.Equal(t, want, got, page)
	}

	_, ok := ExtractRoll("<html>nothing to see</html>")
	assert.False(t, ok)
}

// allowing returns a client for srv that skips the address guard, since
// httptest only listens on loopback.
func allowing(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return &Client{HTTP: srv.Client(), AllowedHosts: []string{u.Hostname()}}
}

func TestRoll_FetchesAndScrapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/down":
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
		default:
			_, _ = w.Write([]byte(`<p>Roll No: 23CS001</p>`))
		}
	}))
	defer srv.Close()

	c := allowing(t, srv)
	roll, err := c.Roll(context.Background(), srv.URL+"/verify?id=1")
	require.NoError(t, err)
	assert.Equal(t, "23CS001", roll)

	_, err = c.Roll(context.Background(), srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrBadLink)

	_, err = c.Roll(context.Background(), srv.URL+"/down")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.Roll(context.Background(), "ftp://example.com/x")
	assert.ErrorIs(t, err, ErrBadLink)
}

func TestRoll_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := allowing(t, srv)
	target := srv.URL
	srv.Close()

	_, err := c.Roll(context.Background(), target)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrBadLink)
}

func TestRoll_HostAllowList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`Roll No: 23CS001`))
	}))
	defer srv.Close()

	_, err := New(0, []string{"verify.college.edu"}).Roll(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrHostNotAllowed)

	_, err = New(0, nil).Roll(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrHostNotAllowed, "an empty allow-list fetches nothing")

	roll, err := allowing(t, srv).Roll(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "23CS001", roll)
}

func TestRoll_RefusesInternalAddresses(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`Roll No: 99SEC123`))
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	// even an allow-listed name is refused once it resolves to loopback
	c := New(time.Second, []string{u.Hostname()})
	_, err = c.Roll(context.Background(), srv.URL+"/internal/admin")
	assert.ErrorIs(t, err, ErrHostNotAllowed)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, hits)
}

func TestRoll_RedirectLeavingAllowList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://metadata.internal/latest", http.StatusFound)
	}))
	defer srv.Close()

	c := New(time.Second, nil)
	c.AllowedHosts = []string{"127.0.0.1"}
	c.HTTP.Transport = srv.Client().Transport

	_, err := c.Roll(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrHostNotAllowed)
}

func TestPublic(t *testing.T) {
	for _, addr := range []string{"127.0.0.1", "::1", "10.1.2.3", "172.16.0.9", "192.168.1.1", "169.254.169.254", "fe80::1", "0.0.0.0", "100.64.1.1", "::ffff:127.0.0.1"} {
		assert.False(t, Public(netip.MustParseAddr(addr)), addr)
	}
	for _, addr := range []string{"8.8.8.8", "142.250.183.110", "2606:4700:4700::1111"} {
		assert.True(t, Public(netip.MustParseAddr(addr)), addr)
	}
}
