package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeValidator struct {
	tokens map[string]string
}

func (v *fakeValidator) Validate(token string) (string, error) {
	if username, ok := v.tokens[token]; ok {
		return username, nil
	}
	return "", errors.New("unknown token")
}

func handshake(cookies map[string]string, query string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws/chat/alice"+query, nil)
	for name, value := range cookies {
		r.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	return r
}

func TestIdentify_CredentialPrecedence(t *testing.T) {
	auth := NewAuthenticator(&fakeValidator{tokens: map[string]string{
		"tok-access": "from-access",
		"tok-jwt":    "from-jwt",
		"tok-query":  "from-query",
	}}, discardLogger())

	tests := []struct {
		name    string
		cookies map[string]string
		query   string
		want    string
		ok      bool
	}{
		{
			name:    "access_token cookie wins over everything",
			cookies: map[string]string{"access_token": "tok-access", "jwt": "tok-jwt"},
			query:   "?token=tok-query",
			want:    "from-access",
			ok:      true,
		},
		{
			name:    "jwt cookie wins over query param",
			cookies: map[string]string{"jwt": "tok-jwt"},
			query:   "?token=tok-query",
			want:    "from-jwt",
			ok:      true,
		},
		{
			name:  "query param as last resort",
			query: "?token=tok-query",
			want:  "from-query",
			ok:    true,
		},
		{
			name: "no credential is anonymous",
		},
		{
			name:    "invalid credential is anonymous",
			cookies: map[string]string{"access_token": "garbage"},
		},
		{
			name:    "empty cookie falls through to next source",
			cookies: map[string]string{"access_token": ""},
			query:   "?token=tok-query",
			want:    "from-query",
			ok:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := auth.Identify(handshake(tt.cookies, tt.query))
			if ok != tt.ok || got != tt.want {
				t.Errorf("Identify() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestIdentify_InvalidPrimaryDoesNotFallBack(t *testing.T) {
	auth := NewAuthenticator(&fakeValidator{tokens: map[string]string{
		"tok-query": "from-query",
	}}, discardLogger())

	// A present-but-invalid access_token cookie must not let a weaker
	// credential be tried instead.
	r := handshake(map[string]string{"access_token": "expired"}, "?token=tok-query")
	if got, ok := auth.Identify(r); ok {
		t.Errorf("expected anonymous, got %q", got)
	}
}
