package model

import (
	"context"
	"time"
)

// Default values substituted when a test document omits optional fields.
const (
	DefaultDurationMinutes = 60
	DefaultTeacherName     = "Unknown"
	DefaultTopic           = "General"
	DefaultSubtopic        = "N/A"
	DefaultDifficulty      = "Medium"
	DefaultExplanation     = "No explanation provided"
)

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	QuestionsPath string        // collection holding test documents
	ResultsPath   string        // collection receiving result documents
	BasePath      string        // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies bool          // Set Secure flag on cookies (disable for local dev)
	SessionTTL    time.Duration // idle browser sessions are dropped after this
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}
