package middleware

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"astroguide/internal/domain"
)

func TestSignAndVerifyJWT(t *testing.T) {
	secret := "test-secret"
	claims := TokenClaims{
		Sub:      "user-123",
		Plan:     "pro",
		Locale:   "es",
		Exp:      time.Now().Add(time.Hour).Unix(),
		Issuer:   "tester",
		Audience: "clients",
	}
	token, err := SignJWT(secret, claims)
	if err != nil {
		t.Fatalf("SignJWT() unexpected error: %v", err)
	}
	parsed, err := VerifyJWT(secret, token, TokenPolicy{Issuer: "tester", Audience: "clients"})
	if err != nil {
		t.Fatalf("VerifyJWT() unexpected error: %v", err)
	}
	if *parsed != claims {
		t.Fatalf("VerifyJWT() returned %+v, want %+v", parsed, claims)
	}
}

func TestVerifyJWTRejects(t *testing.T) {
	valid := TokenClaims{Sub: "user-123", Exp: time.Now().Add(time.Hour).Unix()}
	good, _ := SignJWT("secret", valid)
	expired, _ := SignJWT("secret", TokenClaims{Sub: "user-123", Exp: time.Now().Add(-time.Minute).Unix()})
	noSubject, _ := SignJWT("secret", TokenClaims{Exp: time.Now().Add(time.Hour).Unix()})
	parts := strings.Split(good, ".")
	noneAlg := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`)) + "." + parts[1] + "." + parts[2]
	foreign, _ := SignJWT("secret", TokenClaims{Sub: "user-123", Exp: valid.Exp, Issuer: "other-app", Audience: "mobile"})
	wrongAudience, _ := SignJWT("secret", TokenClaims{Sub: "user-123", Exp: valid.Exp, Issuer: "astroguide", Audience: "web"})
	pinned := TokenPolicy{Issuer: "astroguide", Audience: "mobile"}

	tests := []struct {
		name   string
		secret string
		token  string
		policy TokenPolicy
		want   error
	}{
		{name: "wrong secret", secret: "other", token: good, want: errBadSignature},
		{name: "expired", secret: "secret", token: expired, want: errTokenExpired},
		{name: "no subject", secret: "secret", token: noSubject, want: errMalformedToken},
		{name: "alg none", secret: "secret", token: noneAlg, want: errUnsupportedAlg},
		{name: "two parts", secret: "secret", token: "a.b", want: errMalformedToken},
		{name: "issuer mismatch", secret: "secret", token: foreign, policy: pinned, want: errBadIssuer},
		{name: "audience mismatch", secret: "secret", token: wrongAudience, policy: pinned, want: errBadAudience},
		{name: "missing issuer when pinned", secret: "secret", token: good, policy: pinned, want: errBadIssuer},
		{name: "unpinned accepts any issuer", secret: "secret", token: foreign},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := VerifyJWT(tc.secret, tc.token, tc.policy); err != tc.want {
				t.Fatalf("VerifyJWT() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestAuthJWTPopulatesContext(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "user-9", Plan: "pro", Locale: "ru-RU", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT() error: %v", err)
	}
	var gotUser, gotLocale string
	var gotPlan domain.UserPlan
	h := AuthJWT("secret", TokenPolicy{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotPlan = PlanFromContext(r.Context())
		gotLocale = LocaleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotUser != "user-9" || gotPlan != domain.UserPlanPro || gotLocale != "ru" {
		t.Fatalf("context = (%q, %q, %q), want (user-9, pro, ru)", gotUser, gotPlan, gotLocale)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"unauthorized"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestAuthJWTEnforcesPolicy(t *testing.T) {
	h := AuthJWT("secret", TokenPolicy{Issuer: "astroguide", Audience: "mobile"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims TokenClaims
		want   int
	}{
		{name: "matching", claims: TokenClaims{Sub: "u", Exp: exp, Issuer: "astroguide", Audience: "mobile"}, want: http.StatusNoContent},
		{name: "foreign issuer", claims: TokenClaims{Sub: "u", Exp: exp, Issuer: "other", Audience: "mobile"}, want: http.StatusUnauthorized},
		{name: "foreign audience", claims: TokenClaims{Sub: "u", Exp: exp, Issuer: "astroguide", Audience: "web"}, want: http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			token, err := SignJWT("secret", tc.claims)
			if err != nil {
				t.Fatalf("SignJWT() error: %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
