package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sosiluv/farmpass/internal/gatekeeper"
	"github.com/sosiluv/farmpass/internal/models"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext attaches an authenticated session to the request, the
// way the admission pipeline does for handlers behind it.
func WithSessionContext(req *http.Request, subjectID, email string) *http.Request {
	session := &models.Session{SubjectID: subjectID, Email: email}
	return req.WithContext(gatekeeper.WithSession(req.Context(), session))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
