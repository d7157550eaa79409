// Package auth issues and verifies the administrator's bearer tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials means the login email or password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized means a token was missing, malformed, expired or issued
	// for someone other than the administrator.
	ErrUnauthorized = errors.New("not authorized")
)

const defaultTokenTTL = 24 * time.Hour

// Config holds the administrator identity and signing secret.
type Config struct {
	Email string
	// Password is compared in constant time when PasswordHash is empty.
	Password string
	// PasswordHash is a bcrypt hash and takes precedence over Password.
	PasswordHash string
	Secret       string
	TokenTTL     time.Duration
}

// Claims are the JWT claims carried by an admin token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Authenticator checks admin logins and tokens.
type Authenticator struct {
	cfg Config
	now func() time.Time
}

// New creates an Authenticator.
func New(cfg Config) (*Authenticator, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("auth: admin email is required")
	}
	if cfg.Password == "" && cfg.PasswordHash == "" {
		return nil, errors.New("auth: admin password or password hash is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	cfg.Email = normalize(cfg.Email)
	return &Authenticator{cfg: cfg, now: time.Now}, nil
}

// Login checks the credentials and returns a signed token.
func (a *Authenticator) Login(email, password string) (string, error) {
	emailOK := subtle.ConstantTimeCompare([]byte(normalize(email)), []byte(a.cfg.Email)) == 1

	var passOK bool
	if a.cfg.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.Password)) == 1
	}

	if !emailOK || !passOK {
		return "", ErrInvalidCredentials
	}
	return a.Issue()
}

// Issue signs a fresh admin token.
func (a *Authenticator) Issue() (string, error) {
	now := a.now()
	claims := Claims{
		Email: a.cfg.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Verify validates tokenStr and returns its claims.
func (a *Authenticator) Verify(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrUnauthorized
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return []byte(a.cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if normalize(claims.Email) != a.cfg.Email {
		return nil, fmt.Errorf("%w: token not issued for the administrator", ErrUnauthorized)
	}
	return claims, nil
}

// TokenFromRequest reads the token from the "token" header or an
// Authorization bearer header.
func TokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("token")); t != "" {
		return t
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// HashPassword returns a bcrypt hash suitable for Config.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
