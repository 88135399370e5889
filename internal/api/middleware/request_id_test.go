package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rhobro/dr-pings-booty/internal/api/middleware"
)

func serveWithID(header string) (ctxID, respID string) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:enrich", http.NoBody)
	if header != "" {
		req.Header.Set(middleware.RequestIDHeader, header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return ctxID, w.Header().Get(middleware.RequestIDHeader)
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantSame  bool
		wantFresh bool
	}{
		{name: "generated when absent", wantFresh: true},
		{name: "client id preserved", header: "planner-7f3a", wantSame: true},
		{name: "oversized id replaced", header: strings.Repeat("x", 200), wantFresh: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctxID, respID := serveWithID(tt.header)

			assert.Equal(t, ctxID, respID)
			if tt.wantSame {
				assert.Equal(t, tt.header, respID)
			}
			if tt.wantFresh {
				assert.True(t, strings.HasPrefix(respID, "req_"), respID)
				assert.Len(t, respID, len("req_")+22)
			}
		})
	}
}

func TestRequestID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, id := serveWithID("")
		assert.False(t, seen[id], "duplicate request ID %s", id)
		seen[id] = true
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}
