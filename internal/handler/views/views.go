// Package views renders the HTML pages of the exam taker. Pages are templ
// components; run `templ generate` after editing a .templ file.
package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	appI18n "github.com/pavelanni/examtaker/internal/i18n"
	"github.com/pavelanni/examtaker/internal/model"
)

//go:generate templ generate

func t(ctx context.Context, id string) string {
	return appI18n.T(ctx, id)
}

// td translates id with template data given as key/value pairs.
func td(ctx context.Context, id string, kv ...any) string {
	data := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			data[k] = kv[i+1]
		}
	}
	return appI18n.Td(ctx, id, data)
}

func path(ctx context.Context, p string) string {
	return model.BasePathFromContext(ctx) + p
}

func csrfToken(ctx context.Context) string {
	return model.CSRFTokenFromContext(ctx)
}

func percent(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

func orText(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// createdLayouts are the ISO 8601 forms accepted for a test's created_at.
var createdLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// CreatedText formats a test's created_at for display, falling back to the raw value.
func CreatedText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02 15:04")
		}
	}
	return raw
}

func joinTopics(topics []string) string {
	return strings.Join(topics, ", ")
}
