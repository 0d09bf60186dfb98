package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"transferdesk/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain takes first hop", headers: map[string]string{"X-Forwarded-For": "10.0.0.7, 172.16.0.1"}, remote: "192.0.2.1:5000", want: "10.0.0.7"},
		{name: "real ip header", headers: map[string]string{"X-Real-IP": " 10.0.0.8 "}, remote: "192.0.2.1:5000", want: "10.0.0.8"},
		{name: "ipv4 socket", remote: "192.0.2.1:5000", want: "192.0.2.1"},
		{name: "ipv6 socket", remote: "[::1]:5000", want: "::1"},
		{name: "no port", remote: "192.0.2.9", want: "192.0.2.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestDescribeUserAgent(t *testing.T) {
	assert.Empty(t, DescribeUserAgent(""))

	firefox := DescribeUserAgent("Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	assert.Contains(t, firefox, "Firefox 128.0")
	assert.Contains(t, firefox, "Linux")

	bot := DescribeUserAgent("Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")
	assert.Contains(t, bot, "bot:")
}

func TestClientMetadataPopulatesContext(t *testing.T) {
	var ip, device string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip = requestcontext.ClientIP(r.Context())
		device = requestcontext.Device(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:443"
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "198.51.100.4", ip)
	assert.Contains(t, device, "Firefox")
}
