package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightsmile/dental-scheduling/pkg/logging"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	h := NewHandler(NewService(db, logging.Default()), logging.Default())
	return h, mock, func() { db.Close() }
}

func serveAudit(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Mount("/audit", h.Routes())

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestListEventsEndpoint(t *testing.T) {
	h, mock, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM scheduling_audit_events").
		WithArgs("staff-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "actor_id", "subject_id", "details", "created_at",
		}).AddRow(uuid.NewString(), EventSlotCreated, "staff-1", "slot-9", []byte(`{}`), time.Now()))

	rec := serveAudit(h, "/audit/events?actor=staff-1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []Event `json:"events"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, EventSlotCreated, resp.Events[0].EventType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEventsEmpty(t *testing.T) {
	h, mock, cleanup := newTestHandler(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM scheduling_audit_events").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_type", "actor_id", "subject_id", "details", "created_at",
		}))

	rec := serveAudit(h, "/audit/events")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events": [], "count": 0}`, rec.Body.String())
}

func TestListEventsValidation(t *testing.T) {
	h, _, cleanup := newTestHandler(t)
	defer cleanup()

	tests := []struct {
		name   string
		target string
	}{
		{"bad start", "/audit/events?start=yesterday"},
		{"bad end", "/audit/events?end=0"},
		{"bad limit", "/audit/events?limit=none"},
		{"negative offset", "/audit/events?offset=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveAudit(h, tt.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListEventsWithoutService(t *testing.T) {
	h := NewHandler(nil, logging.Default())
	rec := serveAudit(h, "/audit/events")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
