// package auth verifies identity tokens supplied on each request.
//
// Verification is stateless: every handler re-verifies the cookie
// token instead of keeping a server-side session. The identity
// provider itself is a black box behind [Verifier]; the application
// only relies on the claims containing a stable subject id.
package auth

import (
	"fmt"

	"github.com/gerrymanoim/to-listen/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds verified identity assertions. Subject is the stable
// user key every stored document is partitioned by.
type Claims struct {
	Subject string
	Raw     map[string]any
}

// Verifier validates an opaque identity token and yields its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// JWTVerifier verifies HMAC-signed identity tokens.
type JWTVerifier struct {
	key    []byte
	issuer string
}

// NewJWTVerifier creates a [JWTVerifier] with the given signing key.
// An empty issuer disables issuer checking.
func NewJWTVerifier(key []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{key: key, issuer: issuer}
}

// Verify parses and validates the token, returning its claims. All
// failure modes (malformed, expired, bad signature, missing subject)
// unwrap to [shared.ErrInvalidIdentityToken].
func (v *JWTVerifier) Verify(tokenString string) (Claims, error) {
	if tokenString == "" {
		return Claims{}, fmt.Errorf("%w: no token supplied", shared.ErrInvalidIdentityToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	mapClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, mapClaims, func(token *jwt.Token) (any, error) {
		return v.key, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", shared.ErrInvalidIdentityToken, err)
	}

	sub, err := mapClaims.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, fmt.Errorf("%w: missing subject claim", shared.ErrInvalidIdentityToken)
	}

	return Claims{Subject: sub, Raw: mapClaims}, nil
}
