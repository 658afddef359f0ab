package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/suratdinas/backend/internal/auth"
	"github.com/suratdinas/backend/internal/numbering"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuthorizeRequestLogsExpiredTokenAtInfoLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/letters", http.NoBody)
	request.Header.Set("Authorization", "Bearer expired-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	handler := &httpHandler{
		tokens: stubTokenIssuer{
			validateErr: auth.ErrExpiredToken,
		},
		logger: logger,
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.InfoLevel {
		t.Fatalf("expected info level for expired token, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
	hasExpired := false
	for _, field := range entry.Context {
		if field.Type == zapcore.ErrorType && errors.Is(field.Interface.(error), auth.ErrExpiredToken) {
			hasExpired = true
			break
		}
	}
	if !hasExpired {
		t.Fatalf("expected expired token error context, got %v", entry.Context)
	}
}

func TestAuthorizeRequestLogsUnexpectedTokenErrorAtWarnLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/letters", http.NoBody)
	request.Header.Set("Authorization", "Bearer invalid-token")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	handler := &httpHandler{
		tokens: stubTokenIssuer{
			validateErr: fmt.Errorf("%w: signature mismatch", auth.ErrInvalidToken),
		},
		logger: logger,
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for unexpected error, got %s", entry.Level)
	}
	if entry.Message != "token validation failed" {
		t.Fatalf("unexpected log message: %q", entry.Message)
	}
}

func TestAuthorizeRequestRejectsMissingToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/letters", http.NoBody)
	request.Header.Set("Authorization", "Basic YWRtaW46YWRtaW4=")
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		tokens: stubTokenIssuer{},
		logger: zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if !ctx.IsAborted() {
		t.Fatalf("expected the request to be aborted")
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no log entries for a missing token, got %d", logs.Len())
	}
}

func TestAuthorizeRequestStoresCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/api/events?access_token=stream-token", http.NoBody)
	ctx.Request = request

	handler := &httpHandler{
		tokens: stubTokenIssuer{
			claims: auth.Claims{UserID: "staff-a", DepartmentID: "dept-a"},
		},
		logger: zap.NewNop(),
	}

	handler.authorizeRequest(ctx)

	if ctx.IsAborted() {
		t.Fatalf("expected the request to pass, got status %d", recorder.Code)
	}
	caller := callerFrom(ctx)
	expected := numbering.Caller{UserID: "staff-a", DepartmentID: "dept-a"}
	if caller != expected {
		t.Fatalf("unexpected caller: got %+v, want %+v", caller, expected)
	}
}

func TestRequireAdminRejectsStaff(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &httpHandler{logger: zap.NewNop()}

	testCases := []struct {
		name   string
		caller numbering.Caller
		status int
	}{
		{name: "staff", caller: numbering.Caller{UserID: "staff-a", DepartmentID: "dept-a"}, status: http.StatusForbidden},
		{name: "admin", caller: numbering.Caller{UserID: "admin-1", IsAdmin: true}, status: http.StatusOK},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			ctx, _ := gin.CreateTestContext(recorder)
			ctx.Request = httptest.NewRequest(http.MethodDelete, "/api/letters", http.NoBody)
			ctx.Set(callerContextKey, testCase.caller)

			handler.requireAdmin(ctx)
			if !ctx.IsAborted() {
				ctx.Status(http.StatusOK)
				ctx.Writer.WriteHeaderNow()
			}

			if recorder.Code != testCase.status {
				t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, testCase.status)
			}
		})
	}
}

type stubTokenIssuer struct {
	claims      auth.Claims
	validateErr error
}

func (s stubTokenIssuer) Issue(string, bool, string) (string, int64, error) {
	return "", 0, errors.New("not implemented")
}

func (s stubTokenIssuer) Validate(string) (auth.Claims, error) {
	if s.validateErr != nil {
		return auth.Claims{}, s.validateErr
	}
	return s.claims, nil
}
