package view

import (
	"context"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

const (
	dbTimeout = 5 * time.Second
	// gatewayTimeout bounds actions that may call the payment provider.
	gatewayTimeout = 45 * time.Second
)

func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatTime formats a timestamp into YYYY-MM-DD HH:MM in local time.
func FormatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}

func gatewayCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), gatewayTimeout)
}

func activeStyle(s string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Render(s)
}
