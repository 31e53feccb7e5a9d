package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gw-auth-service/internal/api/middleware"
	"gw-auth-service/internal/api/response"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/cache"
	"gw-auth-service/internal/issuer"
	"gw-auth-service/internal/logger"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/service"
	"gw-auth-service/internal/storages"
	"gw-auth-service/internal/storages/memory"
)

const testPassword = "Str0ng!Pass"

type testAPI struct {
	router *gin.Engine
	store  *memory.Storage
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	log := logger.Discard()
	store := memory.New()
	tokens := security.NewTokenService("api-secret", 15*time.Minute, time.Hour, 0)
	auth := security.NewAuthenticator(tokens, store, log)
	mockIssuer := issuer.NewMockIssuer(1000, log)
	events := audit.NopPublisher{}

	authService, err := service.NewAuthService(store, security.NewPasswordHasher(bcrypt.MinCost), tokens, auth, events, log)
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}

	router := SetupRouter(Services{
		Auth:         authService,
		Users:        service.NewUserService(store, events, log),
		Cards:        service.NewCardService(store, mockIssuer, 5, events, log),
		Transactions: service.NewTransactionService(store, mockIssuer, cache.NewMemoryStatsCache(time.Minute), events, log),
	}, middleware.NewAuthGuard(auth, log), store, log, gin.TestMode)

	return &testAPI{router: router, store: store}
}

type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Code      string          `json:"code"`
	Details   []string        `json:"details"`
	Timestamp string          `json:"timestamp"`
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("Response is not JSON: %s", w.Body.String())
	}
	return w.Code, env
}

// register регистрирует пользователя и возвращает access токен и ID
func (a *testAPI) register(t *testing.T, email string) (string, string) {
	t.Helper()

	code, env := a.do(t, http.MethodPost, "/v1/api/auth/register", "", gin.H{"email": email, "password": testPassword})
	if code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", code, env.Message)
	}

	var result struct {
		User   storages.PublicUser `json:"user"`
		Tokens security.TokenPair  `json:"tokens"`
	}
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("Unexpected register payload: %v", err)
	}
	return result.Tokens.AccessToken, result.User.ID.String()
}

func (a *testAPI) patchUser(t *testing.T, email string, patch storages.UserPatch) {
	t.Helper()

	user, err := a.store.FindUserByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("FindUserByEmail failed: %v", err)
	}
	if _, err := a.store.UpdateUser(context.Background(), user.ID, patch); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
}

func (a *testAPI) verify(t *testing.T, email string) {
	verified := storages.KYCStatusVerified
	a.patchUser(t, email, storages.UserPatch{KYCStatus: &verified})
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(t, http.MethodGet, "/v1/api/cards", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", code)
	}
	if env.Status != response.StatusError || env.Message != security.MsgNoToken || env.Timestamp == "" {
		t.Fatalf("Unexpected envelope: %+v", env)
	}

	code, env = api.do(t, http.MethodGet, "/v1/api/cards", "garbage", nil)
	if code != http.StatusUnauthorized || env.Message != security.MsgInvalidToken {
		t.Fatalf("Expected 401 %q, got %d %q", security.MsgInvalidToken, code, env.Message)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register(t, "user@example.com")

	for _, path := range []string{"/v1/api/users", "/v1/api/admin/transactions"} {
		code, env := api.do(t, http.MethodGet, path, token, nil)
		if code != http.StatusForbidden || env.Message != security.MsgAdminRequired {
			t.Fatalf("%s: expected 403 %q, got %d %q", path, security.MsgAdminRequired, code, env.Message)
		}
	}

	code, _ := api.do(t, http.MethodGet, "/v1/api/admin/transactions", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 before admin check, got %d", code)
	}

	admin := storages.RoleAdmin
	api.patchUser(t, "user@example.com", storages.UserPatch{Role: &admin})

	code, env := api.do(t, http.MethodGet, "/v1/api/users", token, nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 for admin, got %d: %s", code, env.Message)
	}
}

func TestLoginAndRefresh(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "login@example.com")

	code, env := api.do(t, http.MethodPost, "/v1/api/auth/login", "", gin.H{"email": "login@example.com", "password": "Wr0ng!Pass"})
	if code != http.StatusUnauthorized || env.Message != service.MsgInvalidCredentials {
		t.Fatalf("Expected 401 %q, got %d %q", service.MsgInvalidCredentials, code, env.Message)
	}

	code, env = api.do(t, http.MethodPost, "/v1/api/auth/login", "", gin.H{"email": "login@example.com", "password": testPassword})
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", code, env.Message)
	}

	var result struct {
		Tokens security.TokenPair `json:"tokens"`
	}
	json.Unmarshal(env.Data, &result)

	code, env = api.do(t, http.MethodPost, "/v1/api/auth/refresh", "", gin.H{"refreshToken": result.Tokens.RefreshToken})
	if code != http.StatusOK {
		t.Fatalf("Expected 200 on refresh, got %d: %s", code, env.Message)
	}

	code, _ = api.do(t, http.MethodPost, "/v1/api/auth/logout", result.Tokens.AccessToken, nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 on logout, got %d", code)
	}
}

func TestRegisterErrors(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "dup@example.com")

	code, env := api.do(t, http.MethodPost, "/v1/api/auth/register", "", gin.H{"email": "dup@example.com", "password": testPassword})
	if code != http.StatusConflict {
		t.Fatalf("Expected 409, got %d", code)
	}

	code, env = api.do(t, http.MethodPost, "/v1/api/auth/register", "", gin.H{"email": "weak@example.com", "password": "weak"})
	if code != http.StatusBadRequest || len(env.Details) == 0 {
		t.Fatalf("Expected 400 with details, got %d %+v", code, env)
	}

	code, _ = api.do(t, http.MethodPost, "/v1/api/auth/register", "", gin.H{"email": "x@example.com", "password": testPassword, "role": "admin"})
	if code != http.StatusBadRequest {
		t.Fatalf("Expected unknown fields to be rejected, got %d", code)
	}
}

func TestCardAndTransactionFlow(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register(t, "flow@example.com")
	otherToken, _ := api.register(t, "other@example.com")

	code, env := api.do(t, http.MethodPost, "/v1/api/cards", token, gin.H{})
	if code != http.StatusUnprocessableEntity || env.Message != service.MsgKYCRequired {
		t.Fatalf("Expected 422 KYC error, got %d %q", code, env.Message)
	}

	api.verify(t, "flow@example.com")

	code, env = api.do(t, http.MethodPost, "/v1/api/cards", token, gin.H{"cardNickname": "Main"})
	if code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", code, env.Message)
	}
	var card storages.Card
	json.Unmarshal(env.Data, &card)

	code, _ = api.do(t, http.MethodGet, "/v1/api/cards/"+card.ID.String(), otherToken, nil)
	if code != http.StatusForbidden {
		t.Fatalf("Expected 403 for foreign card, got %d", code)
	}

	var txID string
	for _, amount := range []string{"100.00", "50.00"} {
		code, env = api.do(t, http.MethodPost, "/v1/api/transactions", token, gin.H{
			"cardId":       card.ID,
			"amount":       amount,
			"currency":     "USD",
			"merchantName": "Store",
		})
		if code != http.StatusCreated {
			t.Fatalf("Expected 201, got %d: %s %v", code, env.Message, env.Details)
		}
		var tx storages.Transaction
		json.Unmarshal(env.Data, &tx)
		txID = tx.ID.String()
	}

	code, env = api.do(t, http.MethodGet, "/v1/api/cards/"+card.ID.String(), token, nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	json.Unmarshal(env.Data, &card)
	if !card.Balance.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("Expected balance 150, got %s", card.Balance)
	}

	code, env = api.do(t, http.MethodDelete, "/v1/api/transactions/"+txID, token, nil)
	if code != http.StatusConflict || env.Message != service.MsgCompletedNotDeletable {
		t.Fatalf("Expected 409 %q, got %d %q", service.MsgCompletedNotDeletable, code, env.Message)
	}

	code, _ = api.do(t, http.MethodGet, "/v1/api/transactions/"+txID, otherToken, nil)
	if code != http.StatusForbidden {
		t.Fatalf("Expected 403 for foreign transaction, got %d", code)
	}

	code, env = api.do(t, http.MethodGet, "/v1/api/transactions/stats", token, nil)
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	var stats storages.TransactionStats
	json.Unmarshal(env.Data, &stats)
	if stats.Total != 2 || stats.Completed != 2 {
		t.Fatalf("Unexpected stats: %+v", stats)
	}
}

func TestInvalidPathID(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register(t, "ids@example.com")

	code, env := api.do(t, http.MethodGet, "/v1/api/cards/not-a-uuid", token, nil)
	if code != http.StatusBadRequest || env.Code != "invalid_id" {
		t.Fatalf("Expected 400 invalid_id, got %d %s", code, env.Code)
	}
}
