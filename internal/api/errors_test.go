package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/apperr"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"validation", apperr.Validation("hours must be a positive number"), http.StatusBadRequest,
			`{"error":"validation_error","message":"hours must be a positive number"}`},
		{"not found", apperr.NotFound("exchange"), http.StatusNotFound,
			`{"error":"not_found","message":"exchange not found"}`},
		{"tenant mismatch", apperr.ErrTenantMismatch, http.StatusForbidden,
			`{"error":"tenant_mismatch","message":"entities belong to different tenants"}`},
		{"not participant", apperr.ErrNotParticipant, http.StatusForbidden,
			`{"error":"not_participant","message":"caller is not a party to this exchange"}`},
		{"wrapped policy violation", fmt.Errorf("send: %w", apperr.ErrMessagingRestricted), http.StatusUnprocessableEntity,
			`{"error":"messaging_restricted","message":"messaging is disabled for this member"}`},
		{"invalid transition", apperr.ErrInvalidTransition.With("cannot move exchange from completed to approved"), http.StatusConflict,
			`{"error":"invalid_transition","message":"cannot move exchange from completed to approved"}`},
		{"concurrency conflict", apperr.ErrConcurrencyConflict, http.StatusConflict,
			`{"error":"concurrency_conflict","message":"exchange was modified concurrently, retry","retryable":true}`},
		{"internal fault", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable,
			`{"error":"unavailable","message":"temporarily unavailable, retry","retryable":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, zap.NewNop(), "op", tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRecoveryAnswersUnavailable(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("nil map write") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"unavailable","message":"temporarily unavailable, retry","retryable":true}`, rec.Body.String())
}

func TestPagination(t *testing.T) {
	tests := []struct {
		query   string
		ok      bool
		page    int
		perPage int
	}{
		{"", true, 1, 50},
		{"page=3&per_page=20", true, 3, 20},
		{"per_page=1000", true, 1, 100},
		{"page=0", false, 0, 0},
		{"per_page=-5", false, 0, 0},
		{"page=two", false, 0, 0},
		{"page=" + strconv.Itoa(maxPage), true, maxPage, 50},
		{"page=" + strconv.Itoa(maxPage+1), false, 0, 0},
		{"page=9223372036854775807", false, 0, 0},
		{"page=99999999999999999999", false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)

			p, ok := pagination(c)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				return
			}
			assert.Equal(t, tt.page, p.Page)
			assert.Equal(t, tt.perPage, p.PerPage)
		})
	}
}
