package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/cache"
	"gw-auth-service/internal/issuer"
	"gw-auth-service/internal/logger"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/storages"
	"gw-auth-service/internal/storages/memory"
)

const testPassword = "Str0ng!Pass"

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []audit.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]audit.EventType, 0, len(p.events))
	for _, e := range p.events {
		result = append(result, e.Type)
	}
	return result
}

func (p *recordingPublisher) has(eventType audit.EventType) bool {
	for _, t := range p.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

type testEnv struct {
	store        *memory.Storage
	tokens       *security.TokenService
	auth         *security.Authenticator
	events       *recordingPublisher
	authService  *AuthService
	users        *UserService
	cards        *CardService
	transactions *TransactionService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.Discard()
	store := memory.New()
	events := &recordingPublisher{}
	tokens := security.NewTokenService("test-secret", 15*time.Minute, 7*24*time.Hour, 0)
	auth := security.NewAuthenticator(tokens, store, log)
	mockIssuer := issuer.NewMockIssuer(1000, log)

	authService, err := NewAuthService(store, security.NewPasswordHasher(bcrypt.MinCost), tokens, auth, events, log)
	if err != nil {
		t.Fatalf("NewAuthService failed: %v", err)
	}

	return &testEnv{
		store:        store,
		tokens:       tokens,
		auth:         auth,
		events:       events,
		authService:  authService,
		users:        NewUserService(store, events, log),
		cards:        NewCardService(store, mockIssuer, 5, events, log),
		transactions: NewTransactionService(store, mockIssuer, cache.NewMemoryStatsCache(time.Minute), events, log),
	}
}

// register создает пользователя и возвращает его проверенную личность
func (e *testEnv) register(t *testing.T, email string) security.Identity {
	t.Helper()

	result, err := e.authService.Register(context.Background(), RegisterInput{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return e.identity(t, result.Tokens.AccessToken)
}

// registerVerified создает пользователя с пройденным KYC
func (e *testEnv) registerVerified(t *testing.T, email string) security.Identity {
	t.Helper()

	id := e.register(t, email)
	e.patchUser(t, id, storages.UserPatch{KYCStatus: kycPtr(storages.KYCStatusVerified)})
	return id
}

func (e *testEnv) registerAdmin(t *testing.T, email string) security.AdminIdentity {
	t.Helper()

	id := e.register(t, email)
	role := storages.RoleAdmin
	e.patchUser(t, id, storages.UserPatch{Role: &role})

	token, err := e.tokens.IssuePair(id.UserID(), id.Email())
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	admin, err := security.RequireAdmin(e.identity(t, token.AccessToken))
	if err != nil {
		t.Fatalf("RequireAdmin failed: %v", err)
	}
	return admin
}

func (e *testEnv) patchUser(t *testing.T, id security.Identity, patch storages.UserPatch) {
	t.Helper()

	if _, err := e.store.UpdateUser(context.Background(), id.UserID(), patch); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
}

func (e *testEnv) identity(t *testing.T, accessToken string) security.Identity {
	t.Helper()

	id, err := e.auth.Authenticate(context.Background(), "Bearer "+accessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	return id
}

func kycPtr(status storages.KYCStatus) *storages.KYCStatus {
	return &status
}

func strPtr(s string) *string {
	return &s
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()

	if err == nil {
		t.Fatalf("Expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("Expected %s error, got %s (%v)", kind, got, err)
	}
}
