package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/logger"
)

type fakeAuditReader struct {
	records  []audit.Record
	lastUser string
	pingErr  error
}

func (f *fakeAuditReader) FindByUser(ctx context.Context, userID string, limit int) ([]audit.Record, error) {
	f.lastUser = userID
	var result []audit.Record
	for _, r := range f.records {
		if r.UserID == userID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (f *fakeAuditReader) FindRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeAuditReader) Statistics(ctx context.Context) (*audit.Statistics, error) {
	return &audit.Statistics{TotalProcessed: int64(len(f.records))}, nil
}

func (f *fakeAuditReader) Ping(ctx context.Context) error {
	return f.pingErr
}

type fakeConsumerStats struct{}

func (fakeConsumerStats) GetStatistics() map[string]interface{} {
	return map[string]interface{}{"messages_processed": int64(2)}
}

func getJSON(t *testing.T, router *gin.Engine, path string) (int, envelope) {
	t.Helper()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func TestStatusRouterEvents(t *testing.T) {
	userID := uuid.NewString()
	reader := &fakeAuditReader{records: []audit.Record{
		{EventID: "1", Type: audit.EventCardCreated, UserID: userID},
		{EventID: "2", Type: audit.EventUserLogout, UserID: uuid.NewString()},
	}}
	router := SetupStatusRouter(reader, fakeConsumerStats{}, logger.Discard(), gin.TestMode)

	code, env := getJSON(t, router, "/events?userId="+userID)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	var records []audit.Record
	json.Unmarshal(env.Data, &records)
	if len(records) != 1 || reader.lastUser != userID {
		t.Fatalf("Expected one event for user, got %d", len(records))
	}

	code, env = getJSON(t, router, "/events?limit=1")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	json.Unmarshal(env.Data, &records)
	if len(records) != 1 {
		t.Fatalf("Expected limit to apply, got %d", len(records))
	}

	code, _ = getJSON(t, router, "/events?userId=bad")
	if code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad user id, got %d", code)
	}
}

func TestStatusRouterStatsAndHealth(t *testing.T) {
	reader := &fakeAuditReader{records: []audit.Record{{EventID: "1"}}}
	router := SetupStatusRouter(reader, fakeConsumerStats{}, logger.Discard(), gin.TestMode)

	code, env := getJSON(t, router, "/stats")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	var payload struct {
		Consumer map[string]interface{} `json:"consumer"`
		Stored   audit.Statistics       `json:"stored"`
	}
	json.Unmarshal(env.Data, &payload)
	if payload.Stored.TotalProcessed != 1 || payload.Consumer["messages_processed"] == nil {
		t.Fatalf("Unexpected stats payload: %+v", payload)
	}

	reader.pingErr = errors.New("mongo down")
	if code, _ := getJSON(t, router, "/health"); code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 when storage is down, got %d", code)
	}
}
