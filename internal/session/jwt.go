package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoUser is returned for a valid token that names no customer.
var ErrNoUser = errors.New("token has no user id")

// Claims matches tokens issued by the WordPress JWT auth plugin, which puts
// the customer id under data.user.id. Tokens that carry the id in sub
// ("42" or "user:42") are accepted too.
type Claims struct {
	Data struct {
		User struct {
			ID flexInt `json:"id"`
		} `json:"user"`
	} `json:"data"`
	jwt.RegisteredClaims
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("user id %q is not numeric", b)
	}
	*f = flexInt(n)
	return nil
}

// UserID returns the customer id named by the claims.
func (c *Claims) UserID() (int, error) {
	if id := int(c.Data.User.ID); id > 0 {
		return id, nil
	}
	sub := strings.TrimPrefix(c.Subject, "user:")
	if id, err := strconv.Atoi(sub); err == nil && id > 0 {
		return id, nil
	}
	return 0, ErrNoUser
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier creates a Verifier. issuer is checked when non-empty.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates token and returns its session.
func (v *Verifier) Verify(token string) (*Session, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	id, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	return &Session{UserID: id}, nil
}

// Issue signs a token for userID in the WordPress plugin's claim layout.
// Used by tooling and tests; production tokens come from the store.
func (v *Verifier) Issue(userID int, ttl time.Duration) (string, error) {
	now := time.Now().UTC()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}
	claims.Data.User.ID = flexInt(userID)

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// MarshalJSON keeps Issue's output readable by json-based tooling.
func (f flexInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(f))
}
