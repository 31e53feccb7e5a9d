package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"gw-auth-service/internal/logger"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/storages"
	"gw-auth-service/internal/storages/memory"
)

type testServer struct {
	tokens *security.TokenService
	store  *memory.Storage
	client *TokenClient
	conn   *grpc.ClientConn
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.Discard()
	store := memory.New()
	tokens := security.NewTokenService("grpc-secret", 15*time.Minute, time.Hour, 0)
	srv := NewServer(security.NewAuthenticator(tokens, store, log), log)

	listener := bufconn.Listen(1024 * 1024)
	go srv.Serve(listener)
	t.Cleanup(srv.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	})

	client, err := NewTokenClient("bufnet", time.Second, log, dialer)
	if err != nil {
		t.Fatalf("NewTokenClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	conn, err := grpc.Dial("bufnet", dialer, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return &testServer{tokens: tokens, store: store, client: client, conn: conn}
}

func (s *testServer) createUser(t *testing.T, email string, status storages.AccountStatus) *storages.User {
	t.Helper()

	user := &storages.User{Email: email, PasswordHash: "hash", Role: storages.RoleAdmin, AccountStatus: status}
	if err := s.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func TestIntrospectValidToken(t *testing.T) {
	srv := startServer(t)
	user := srv.createUser(t, "grpc@example.com", storages.AccountStatusActive)

	pair, err := srv.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	info, err := srv.client.Introspect(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Introspect failed: %v", err)
	}
	if info.UserID != user.ID || info.Email != user.Email || info.Role != storages.RoleAdmin {
		t.Fatalf("Unexpected token info: %+v", info)
	}
}

func TestIntrospectRejectsBadTokens(t *testing.T) {
	srv := startServer(t)
	suspended := srv.createUser(t, "suspended@example.com", storages.AccountStatusSuspended)

	pair, err := srv.tokens.IssuePair(suspended.ID, suspended.Email)
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	for name, token := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.token",
		"suspended": pair.AccessToken,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := srv.client.Introspect(context.Background(), token)
			if status.Code(errors.Unwrap(err)) != codes.Unauthenticated {
				t.Fatalf("Expected Unauthenticated, got %v", err)
			}
		})
	}
}

func TestHealthService(t *testing.T) {
	srv := startServer(t)

	resp, err := healthpb.NewHealthClient(srv.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: TokenServiceName})
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("Expected SERVING, got %s", resp.GetStatus())
	}
}
