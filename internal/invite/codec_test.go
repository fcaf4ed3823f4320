package invite

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueCookie(t *testing.T, c *Codec, name string, p Payload) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, c.Issue(rec, name, p))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func requestWith(cookies ...*http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec([]byte("0123456789abcdef0123456789abcdef"), true)
	expires := time.Now().Add(48 * time.Hour).Truncate(time.Second)

	cookie := issueCookie(t, codec, LinkCookie, Payload{Token: "tok-1", ExpiresAt: expires})

	assert.Equal(t, LinkCookie, cookie.Name)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	got, ok := codec.Read(requestWith(cookie), LinkCookie)
	require.True(t, ok)
	assert.Equal(t, "tok-1", got.Token)
	assert.True(t, expires.Equal(got.ExpiresAt))
}

func TestCodec_NamespacesAreIndependent(t *testing.T) {
	codec := NewCodec([]byte("0123456789abcdef0123456789abcdef"), false)
	cookie := issueCookie(t, codec, EmailCookie, Payload{Token: "tok123", ExpiresAt: time.Now().Add(time.Hour)})

	_, ok := codec.Read(requestWith(cookie), LinkCookie)
	assert.False(t, ok)

	got, ok := codec.Read(requestWith(cookie), EmailCookie)
	require.True(t, ok)
	assert.Equal(t, "tok123", got.Token)
}

func TestCodec_InvalidCookiesAreAbsent(t *testing.T) {
	codec := NewCodec([]byte("0123456789abcdef0123456789abcdef"), false)
	other := NewCodec([]byte("fedcba9876543210fedcba9876543210"), false)
	valid := issueCookie(t, codec, LinkCookie, Payload{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)})

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{"missing", nil},
		{"garbage", &http.Cookie{Name: LinkCookie, Value: "not-a-token"}},
		{"tampered", &http.Cookie{Name: LinkCookie, Value: valid.Value[:len(valid.Value)-2] + "xx"}},
		{"foreign key", issueCookie(t, other, LinkCookie, Payload{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWith()
			if tt.cookie != nil {
				req = requestWith(tt.cookie)
			}
			_, ok := codec.Read(req, LinkCookie)
			assert.False(t, ok)
		})
	}
}

func TestCodec_ExpiredCookieIsAbsent(t *testing.T) {
	codec := NewCodec([]byte("0123456789abcdef0123456789abcdef"), false)
	cookie := issueCookie(t, codec, LinkCookie, Payload{Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)})

	codec.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, ok := codec.Read(requestWith(cookie), LinkCookie)
	assert.False(t, ok)
}

func TestCodec_Clear(t *testing.T) {
	codec := NewCodec([]byte("0123456789abcdef0123456789abcdef"), false)
	rec := httptest.NewRecorder()

	codec.Clear(rec, EmailCookie)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, EmailCookie, cookies[0].Name)
	assert.Equal(t, "", cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}
