package invite

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie names holding an in-progress invite between visit and acceptance.
const (
	LinkCookie  = "invite-link-info"
	EmailCookie = "email-invite-info"
)

// Payload is what an invite cookie carries. It is a hint only: the token is
// re-validated against the database before any membership is written.
type Payload struct {
	Token     string
	ExpiresAt time.Time
}

type cookieClaims struct {
	Token string `json:"tok"`
	jwt.RegisteredClaims
}

// Codec signs and verifies invite cookies.
type Codec struct {
	key    []byte
	secure bool
	now    func() time.Time
}

func NewCodec(key []byte, secure bool) *Codec {
	return &Codec{key: key, secure: secure, now: time.Now}
}

// Issue writes the payload as a signed, HTTP-only cookie that expires with
// the invite.
func (c *Codec) Issue(w http.ResponseWriter, name string, p Payload) error {
	expiresAt := p.ExpiresAt.Truncate(time.Second)

	claims := cookieClaims{
		Token: p.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read returns the payload of a valid cookie. A missing, tampered or
// expired cookie is reported as absent.
func (c *Codec) Read(r *http.Request, name string) (Payload, bool) {
	cookie, err := r.Cookie(name)
	if err != nil || cookie.Value == "" {
		return Payload{}, false
	}

	var claims cookieClaims
	token, err := jwt.ParseWithClaims(cookie.Value, &claims, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid || claims.Token == "" {
		return Payload{}, false
	}

	return Payload{Token: claims.Token, ExpiresAt: claims.ExpiresAt.Time}, true
}

// Clear expires the cookie in the browser.
func (c *Codec) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
