package authservice

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ichigozero/taskgate/authsvc"
)

const (
	bearerPrefix = "Bearer "
	// Audience is the aud claim the identity provider stamps on session tokens.
	Audience = "authenticated"
)

// Claims are the token claims the gateway reads.
type Claims struct {
	Email string       `json:"email,omitempty"`
	Role  authsvc.Role `json:"user_role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier turns an Authorization header into an Identity. With a secret the
// HS256 signature is checked; without one the token is only decoded and the
// downstream service is trusted to re-validate the forwarded token.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	v := &Verifier{now: time.Now}
	if secret != "" {
		v.secret = []byte(secret)
	}
	return v
}

// VerifiesSignature reports whether a shared secret was configured.
func (v *Verifier) VerifiesSignature() bool { return v.secret != nil }

func (v *Verifier) Verify(header string) (authsvc.Identity, error) {
	return v.VerifyAt(header, v.now())
}

// VerifyAt is Verify against a fixed clock.
func (v *Verifier) VerifyAt(header string, now time.Time) (authsvc.Identity, error) {
	if header == "" {
		return authsvc.Identity{}, authsvc.ErrMissingCredential
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return authsvc.Identity{}, authsvc.ErrMalformedCredential
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return authsvc.Identity{}, authsvc.ErrMalformedCredential
	}

	claims, err := v.parse(token)
	if err != nil {
		return authsvc.Identity{}, authsvc.ErrInvalidCredential
	}

	if claims.ExpiresAt == nil || claims.ExpiresAt.Unix() <= now.Unix() {
		return authsvc.Identity{}, authsvc.ErrExpiredCredential
	}
	if claims.Subject == "" {
		return authsvc.Identity{}, authsvc.ErrInvalidCredential
	}

	role := claims.Role
	if role == "" {
		role = authsvc.RoleUser
	}

	return authsvc.Identity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    role,
		Expiry:  claims.ExpiresAt.Time,
	}, nil
}

// Token strips the Bearer prefix from a header already accepted by Verify.
func Token(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

func (v *Verifier) parse(token string) (*Claims, error) {
	claims := &Claims{}
	if v.secret == nil {
		_, _, err := jwt.NewParser().ParseUnverified(token, claims)
		return claims, err
	}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	return claims, err
}

func (v *Verifier) keyFunc(*jwt.Token) (interface{}, error) {
	return v.secret, nil
}

// RoleOf resolves the role of a freshly issued session token. Any failure,
// including a missing secret, yields the user role.
func (v *Verifier) RoleOf(token string) authsvc.Role {
	if v.secret == nil {
		return authsvc.RoleUser
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || claims.Role == "" {
		return authsvc.RoleUser
	}
	return claims.Role
}
