package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// tokenValidator resolves a raw credential to a username.
type tokenValidator interface {
	Validate(token string) (string, error)
}

// Authenticator extracts a credential from the connection handshake and
// resolves it to an identity. Credential precedence: the access_token
// cookie, then the jwt cookie, then the token query parameter. Every failure
// collapses to anonymous; nothing escapes this boundary.
type Authenticator struct {
	validator tokenValidator
	log       *slog.Logger
}

func NewAuthenticator(validator tokenValidator, log *slog.Logger) *Authenticator {
	return &Authenticator{validator: validator, log: log}
}

// Identify returns the authenticated username, or ok=false for anonymous.
// Invoked once at connect time; credentials are not re-validated
// mid-connection.
func (a *Authenticator) Identify(r *http.Request) (string, bool) {
	token := credentialFrom(r)
	if token == "" {
		a.log.Debug("no credential on handshake", "remote", r.RemoteAddr)
		return "", false
	}
	username, err := a.validator.Validate(token)
	if err != nil {
		// Malformed, expired and unverifiable all collapse to anonymous.
		a.log.Debug("credential rejected", "remote", r.RemoteAddr, "error", err)
		return "", false
	}
	return username, true
}

func credentialFrom(r *http.Request) string {
	if c, err := r.Cookie("access_token"); err == nil && c.Value != "" {
		return c.Value
	}
	if c, err := r.Cookie("jwt"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// accessClaims carries the fields we read out of an access token.
type accessClaims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
}

// jwksValidator validates access tokens against a JWKS endpoint, checking
// issuer and requiring expiry.
type jwksValidator struct {
	jwks   *keyfunc.JWKS
	issuer string
}

// NewJWKSValidator fetches the key set with retries, since the identity
// provider may still be starting.
func NewJWKSValidator(jwksURL, issuer string) (*jwksValidator, error) {
	var jwks *keyfunc.JWKS
	var err error
	for attempt := 1; attempt <= 30; attempt++ {
		jwks, err = keyfunc.Get(jwksURL, keyfunc.Options{
			Ctx:                 context.Background(),
			RefreshInterval:     5 * time.Minute,
			RefreshRateLimit:    1 * time.Minute,
			RefreshUnknownKID:   true,
			RefreshErrorHandler: func(err error) { slog.Error("JWKS refresh error", "error", err) },
		})
		if err == nil {
			break
		}
		slog.Info("Waiting for JWKS", "attempt", attempt, "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS after retries: %w", err)
	}
	slog.Info("JWKS loaded", "url", jwksURL)
	return &jwksValidator{jwks: jwks, issuer: issuer}, nil
}

func (v *jwksValidator) Validate(tokenString string) (string, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Subject
	}
	if username == "" {
		return "", fmt.Errorf("token carries no username")
	}
	return username, nil
}

// Close stops the JWKS background refresh.
func (v *jwksValidator) Close() {
	v.jwks.EndBackground()
}
