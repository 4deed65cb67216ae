package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator map[string]*service.Claims

func (v stubValidator) ValidateToken(token string) (*service.Claims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return claims, nil
}

var tokens = stubValidator{
	"student": {TokenType: service.TokenTypeStudent, UserID: "stu-1"},
	"proctor": {TokenType: service.TokenTypeAdmin, UserID: "adm-1", Permissions: []string{string(model.PermissionSessionsRead)}},
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func TestJWTMiddleware(t *testing.T) {
	r := gin.New()
	ok := func(c *gin.Context) { response.Success(c, http.StatusOK, GetClaims(c).UserID) }
	r.GET("/student", RequireStudentJWT(tokens), ok)
	r.GET("/admin", RequireAdminJWT(tokens), RequirePermission(model.PermissionSessionsRead), ok)
	r.GET("/override", RequireAdminJWT(tokens), RequirePermission(model.PermissionSessionsOverride), ok)
	r.GET("/ws", RequireStudentWSAuth(tokens), ok)

	tests := []struct {
		name   string
		path   string
		header string
		status int
		code   response.ErrCode
	}{
		{name: "student ok", path: "/student", header: "Bearer student", status: http.StatusOK},
		{name: "missing token", path: "/student", status: http.StatusUnauthorized, code: response.ErrTokenRequired},
		{name: "bad token", path: "/student", header: "Bearer nope", status: http.StatusUnauthorized, code: response.ErrTokenInvalid},
		{name: "admin on student route", path: "/student", header: "Bearer proctor", status: http.StatusForbidden, code: response.ErrStudentAccessOnly},
		{name: "student on admin route", path: "/admin", header: "bearer student", status: http.StatusForbidden, code: response.ErrAdminAccessOnly},
		{name: "admin with permission", path: "/admin", header: "Bearer proctor", status: http.StatusOK},
		{name: "admin without permission", path: "/override", header: "Bearer proctor", status: http.StatusForbidden, code: response.ErrPermissionDenied},
		{name: "ws query token", path: "/ws?token=student", status: http.StatusOK},
		{name: "ws ignores header", path: "/ws", header: "Bearer student", status: http.StatusUnauthorized, code: response.ErrTokenRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				if got := errorCode(t, rec); got != tt.code {
					t.Errorf("code = %s, want %s", got, tt.code)
				}
			}
		})
	}
}

func TestRateLimiterLocalPerStudent(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(nil, 2, time.Minute, zerolog.Nop())
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/s", RequireStudentJWT(stubValidator{
		"a": {TokenType: service.TokenTypeStudent, UserID: "stu-a"},
		"b": {TokenType: service.TokenTypeStudent, UserID: "stu-b"},
	}), rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	hit := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/s", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := hit("a"); code != http.StatusNoContent {
			t.Fatalf("request %d: status %d", i, code)
		}
	}
	if code := hit("a"); code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d, want 429", code)
	}
	if code := hit("b"); code != http.StatusNoContent {
		t.Fatalf("other student limited: status %d", code)
	}

	now = now.Add(time.Minute)
	if code := hit("a"); code != http.StatusNoContent {
		t.Fatalf("after refill: status %d", code)
	}
}

func TestCompress(t *testing.T) {
	big := strings.Repeat("section ", 200)
	r := gin.New()
	r.Use(Compress(5, 256))
	r.GET("/big", func(c *gin.Context) { response.Success(c, http.StatusOK, big) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusCreated, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("expected br encoding, headers %v", rec.Header())
	}
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(rec.Body.Bytes())))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var body response.Response
	if err := json.Unmarshal(plain, &body); err != nil {
		t.Fatalf("decoded body is not JSON: %v", err)
	}
	if body.Data != big {
		t.Error("decoded payload differs")
	}

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || rec.Body.String() != "ok" || rec.Header().Get("Content-Encoding") != "" {
		t.Errorf("small response altered: %d %q %v", rec.Code, rec.Body.String(), rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/big", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("client without br must get plain body")
	}

	req = httptest.NewRequest(http.MethodGet, "/big", nil)
	req.Header.Set("Accept-Encoding", "br")
	req.Header.Set("Accept", "text/event-stream")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Error("event streams must not be buffered")
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.Use(NoStore())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
}
