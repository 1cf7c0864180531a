package v1

import (
	"io"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIP(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain ipv4", raw: "84.241.200.10", want: "84.241.200.10"},
		{name: "padded and quoted", raw: " \"84.241.200.10\" ", want: "84.241.200.10"},
		{name: "ipv4 with port", raw: "84.241.200.10:443", want: "84.241.200.10"},
		{name: "ipv6 in brackets with port", raw: "[2a02:a440::1]:8443", want: "2a02:a440::1"},
		{name: "ipv6 with zone", raw: "fe80::1%eth0", want: "fe80::1"},
		{name: "ipv4 mapped ipv6", raw: "::ffff:84.241.200.10", want: "84.241.200.10"},
		{name: "garbage", raw: "unknown", want: ""},
		{name: "blank", raw: "  ", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, parsed := normalizeIP(tc.raw)
			assert.Equal(t, tc.want, got)
			if tc.want == "" {
				assert.Nil(t, parsed)
				return
			}
			require.NotNil(t, parsed)
			assert.Equal(t, tc.want, parsed.String())
		})
	}
}

func TestSelectPreferredIP(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"ipv4 wins over ipv6", []string{"2a02:a440::1", "84.241.200.10"}, "84.241.200.10"},
		{"private and loopback are skipped", []string{"192.168.1.10", "10.0.0.5", "::1", "127.0.0.1", "77.161.12.4"}, "77.161.12.4"},
		{"unspecified is skipped", []string{"0.0.0.0", "::"}, ""},
		{"ipv6 when it is all there is", []string{"2a02:a440::2"}, "2a02:a440::2"},
		{"nothing usable", []string{"", "unknown"}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, selectPreferredIP(tc.values))
		})
	}
}

func TestIsPrivateIPWithMappedIPv4(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("::ffff:172.16.4.1")))
	assert.False(t, isPrivateIP(net.ParseIP("::ffff:84.241.200.10")))
	assert.False(t, isPrivateIP(nil))
}

func TestParseForwardedHeader(t *testing.T) {
	got := parseForwardedHeader(`for=192.168.0.1;proto=https, For="[2a02:a440::1]:443";by=10.0.0.1, host=example.nl`)
	assert.Equal(t, []string{"192.168.0.1", `"[2a02:a440::1]:443"`}, got)
	assert.Empty(t, parseForwardedHeader("proto=https"))
}

func TestClientIPAndUserAgent(t *testing.T) {
	const testUA = "vitrine-test"
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(clientIP(c) + "|" + userAgent(c))
	})

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "first public forwarded-for address",
			headers: map[string]string{fiber.HeaderXForwardedFor: "10.0.0.1, 84.241.200.10, 77.161.12.4"},
			want:    "84.241.200.10|" + testUA,
		},
		{
			name:    "proxy header when forwarded-for is private",
			headers: map[string]string{fiber.HeaderXForwardedFor: "10.0.0.1", "CF-Connecting-IP": "77.161.12.4"},
			want:    "77.161.12.4|" + testUA,
		},
		{
			name:    "forwarded header",
			headers: map[string]string{"Forwarded": `for="[2a02:a440::1]:443"`},
			want:    "2a02:a440::1|" + testUA,
		},
		{
			name:    "no usable address",
			headers: map[string]string{},
			want:    "|" + testUA,
		},
		{
			name: "forwarded user agent wins",
			headers: map[string]string{
				fiber.HeaderUserAgent:    "vitrine-collector",
				"X-Forwarded-User-Agent": "Mozilla/5.0 (iPhone)",
			},
			want: "|Mozilla/5.0 (iPhone)",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set(fiber.HeaderUserAgent, testUA)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(body))
		})
	}
}
