package metadata

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudgate/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		xff        []string
		realIP     string
		want       string
	}{
		{"untrusted peer ignores forwarded headers", "203.0.113.7:5555", []string{"10.0.0.9"}, "198.51.100.1", "203.0.113.7"},
		{"trusted peer uses right-most untrusted hop", "10.0.0.1:80", []string{"1.1.1.1, 198.51.100.4, 10.0.0.2"}, "", "198.51.100.4"},
		{"multiple header lines are one chain", "10.0.0.1:80", []string{"198.51.100.4", "10.0.0.2"}, "", "198.51.100.4"},
		{"all hops trusted falls back to left-most", "192.0.2.10:80", []string{"10.0.0.3, 10.0.0.2"}, "", "10.0.0.3"},
		{"malformed hop stops at the peer", "10.0.0.1:80", []string{"198.51.100.4, not-an-ip"}, "", "10.0.0.1"},
		{"trusted peer with real ip header", "10.0.0.1:80", nil, "198.51.100.9", "198.51.100.9"},
		{"trusted peer without headers", "10.0.0.1:80", nil, "", "10.0.0.1"},
		{"ipv4 mapped peer", "[::ffff:203.0.113.7]:443", nil, "", "203.0.113.7"},
		{"missing remote addr", "", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req, trusted))
		})
	}
}

func TestClientIPWithoutTrustedProxies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("X-Real-IP", "10.0.0.2")

	assert.Equal(t, "203.0.113.7", ClientIPFromRequest(req, nil))
}

func TestParseTrustedProxies(t *testing.T) {
	prefixes, err := ParseTrustedProxies([]string{" 10.1.2.3/8 ", "", "2001:db8::1"})
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("2001:db8::1/128"),
	}, prefixes)

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
}

func TestClientMetadataSetsContext(t *testing.T) {
	var ip, ua string
	h := ClientMetadata(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		ua = requestcontext.UserAgent(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.20:1000"
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.20", ip)
	assert.Equal(t, "test-agent", ua)
}
