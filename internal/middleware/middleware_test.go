package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func signClaims(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

func TestJWTAuth_Middleware(t *testing.T) {
	auth := NewJWTAuth(testSecret)
	valid, _ := auth.GenerateAccessToken("user-1", time.Minute)
	future := time.Now().Add(time.Minute).Unix()

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  string
		wantUser string
	}{
		{"valid sub", "Bearer " + valid, http.StatusOK, "", "user-1"},
		{"legacy user_id claim", "Bearer " + signClaims(t, testSecret, jwt.MapClaims{"user_id": "legacy", "exp": future}), http.StatusOK, "", "legacy"},
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"wrong secret", "Bearer " + signClaims(t, "other", jwt.MapClaims{"sub": "u", "exp": future}), http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"expired", "Bearer " + signClaims(t, testSecret, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized, "TOKEN_EXPIRED", ""},
		{"path in user id", "Bearer " + signClaims(t, testSecret, jwt.MapClaims{"sub": "../etc", "exp": future}), http.StatusUnauthorized, "UNAUTHORIZED", ""},
		{"no user", "Bearer " + signClaims(t, testSecret, jwt.MapClaims{"exp": future}), http.StatusUnauthorized, "UNAUTHORIZED", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			RequestID(auth.Middleware(okHandler())).ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			if tc.wantCode == http.StatusOK {
				if rr.Body.String() != tc.wantUser {
					t.Errorf("expected user %q, got %q", tc.wantUser, rr.Body.String())
				}
				return
			}

			var body struct {
				Error struct {
					Code      string `json:"code"`
					RequestID string `json:"request_id"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if body.Error.Code != tc.wantErr {
				t.Errorf("expected code %q, got %q", tc.wantErr, body.Error.Code)
			}
			if body.Error.RequestID == "" {
				t.Errorf("expected request id in error body")
			}
		})
	}
}

func TestRequestID_ReusesHeader(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen != "abc" || rr.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("expected request id to be propagated, got %q / %q", seen, rr.Header().Get("X-Request-ID"))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "abc" {
		t.Errorf("expected a fresh request id, got %q", seen)
	}
}

func TestCallbackSecret(t *testing.T) {
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		name      string
		secret    string
		target    string
		header    string
		wantReach bool
	}{
		{"disabled", "", "/callback", "", true},
		{"header", "s3cret", "/callback", "s3cret", true},
		{"query", "s3cret", "/callback?token=s3cret", "", true},
		{"wrong", "s3cret", "/callback?token=nope", "", false},
		{"missing", "s3cret", "/callback", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(http.MethodPost, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("X-Callback-Token", tc.header)
			}
			rr := httptest.NewRecorder()
			CallbackSecret(tc.secret)(next).ServeHTTP(rr, req)

			if reached != tc.wantReach {
				t.Fatalf("expected reached=%v", tc.wantReach)
			}
			if !tc.wantReach {
				if rr.Code != http.StatusOK || rr.Body.String() != `{"code":200}` {
					t.Errorf("expected success envelope, got %d %q", rr.Code, rr.Body.String())
				}
			}
		})
	}
}

func TestUserRateLimiter(t *testing.T) {
	rl := NewUserRateLimiter(2, time.Minute)
	defer rl.Stop()
	h := rl.Middleware(okHandler())

	do := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/generate", nil)
		req = req.WithContext(WithUserID(req.Context(), user))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("a"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := do("a"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := do("b"); code != http.StatusOK {
		t.Fatalf("other user should not be limited, got %d", code)
	}
}
