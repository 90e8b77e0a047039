package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testService() *JWTService {
	return NewJWTService("test-secret-key", 15*time.Minute, zerolog.Nop())
}

func TestGenerateTokenPair_ProducesValidatableAccessToken(t *testing.T) {
	svc := testService()
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if claims.Username != "operator" || !claims.HasScope("runs:trigger") {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateToken_RejectsTamperedToken(t *testing.T) {
	svc := testService()
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	tampered := pair.AccessToken + "x"
	if _, err := svc.ValidateToken(tampered); err == nil {
		t.Error("expected an error validating a tampered token")
	}
}

func TestValidateToken_RejectsTokenSignedWithDifferentSecret(t *testing.T) {
	svc1 := NewJWTService("secret-one", 15*time.Minute, zerolog.Nop())
	svc2 := NewJWTService("secret-two", 15*time.Minute, zerolog.Nop())

	pair, err := svc1.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	if _, err := svc2.ValidateToken(pair.AccessToken); err == nil {
		t.Error("expected validation against a different secret to fail")
	}
}

func TestValidateAccessToken_RejectsRefreshToken(t *testing.T) {
	svc := testService()
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	if _, err := svc.ValidateAccessToken(pair.RefreshToken); err == nil {
		t.Error("expected ValidateAccessToken to reject a refresh token")
	}
}

func TestRefreshAccessToken_IssuesNewPairFromRefreshToken(t *testing.T) {
	svc := testService()
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	refreshed, err := svc.RefreshAccessToken(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshAccessToken() error = %v", err)
	}
	claims, err := svc.ValidateAccessToken(refreshed.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken(refreshed) error = %v", err)
	}
	if claims.Username != "operator" {
		t.Errorf("Username = %q, want operator", claims.Username)
	}
}

func TestRefreshAccessToken_RejectsAccessTokenUsedAsRefresh(t *testing.T) {
	svc := testService()
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	if _, err := svc.RefreshAccessToken(context.Background(), pair.AccessToken); err == nil {
		t.Error("expected RefreshAccessToken to reject an access token")
	}
}

func TestMiddleware_RejectsMissingAuthorizationHeader(t *testing.T) {
	svc := testService()
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached without a bearer token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMiddleware_RejectsInvalidToken(t *testing.T) {
	svc := testService()
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached with an invalid token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMiddleware_RejectsRefreshTokenPresentedAsBearer(t *testing.T) {
	svc := testService()
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached with a refresh token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestMiddleware_AttachesClaimsForValidToken(t *testing.T) {
	svc := testService()
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	var gotClaims *Claims
	handler := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims to be attached to the request context")
		}
		gotClaims = claims
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotClaims == nil || gotClaims.Username != "operator" {
		t.Errorf("unexpected claims propagated: %+v", gotClaims)
	}
}

func TestClaimsFromContext_FalseWhenAbsent(t *testing.T) {
	if _, ok := ClaimsFromContext(context.Background()); ok {
		t.Error("expected ClaimsFromContext to report false on a bare context")
	}
}

func TestJWTService_AccessTokenExpiryMatchesConfiguredTTL(t *testing.T) {
	svc := NewJWTService("test-secret-key", 5*time.Minute, zerolog.Nop())
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	want := int64((5 * time.Minute).Seconds())
	if pair.ExpiresIn != want {
		t.Errorf("ExpiresIn = %d, want %d", pair.ExpiresIn, want)
	}
}

func TestJWTService_NonPositiveAccessTTLFallsBackToDefault(t *testing.T) {
	svc := NewJWTService("test-secret-key", 0, zerolog.Nop())
	pair, err := svc.GenerateTokenPair(context.Background(), "operator", OperatorScopes)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}
	want := int64((15 * time.Minute).Seconds())
	if pair.ExpiresIn != want {
		t.Errorf("ExpiresIn = %d, want %d (default)", pair.ExpiresIn, want)
	}
}
