package logger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	pkglogger "github.com/sosiluv/farmpass/pkg/logger"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{"typical address", "farmer@example.com", "f*****@*******.com"},
		{"single char user", "a@example.com", "a@*******.com"},
		{"no at sign", "not-an-email", "[invalid-email]"},
		{"two at signs", "a@b@c.com", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pkglogger.SanitizedEmail(tt.email))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, pkglogger.SanitizeQueryString("session_expired=true&token=abc"))
	assert.True(t, pkglogger.SanitizeQueryString("email=x@y.com"))
	assert.False(t, pkglogger.SanitizeQueryString("page=2&sort=asc"))
	assert.False(t, pkglogger.SanitizeQueryString(""))
}
