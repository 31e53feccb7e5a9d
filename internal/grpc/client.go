package grpc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"gw-auth-service/internal/storages"
)

// TokenInfo данные владельца токена
type TokenInfo struct {
	UserID uuid.UUID
	Email  string
	Role   storages.Role
}

// TokenClient клиент сервиса проверки токенов
type TokenClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
	logger  *logrus.Logger
}

// NewTokenClient создает новый gRPC клиент
func NewTokenClient(address string, timeout time.Duration, logger *logrus.Logger, opts ...grpc.DialOption) (*TokenClient, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.Dial(address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to token service: %w", err)
	}

	logger.Infof("Connected to token service at %s", address)

	return &TokenClient{
		conn:    conn,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Introspect проверяет токен на сервере
func (c *TokenClient) Introspect(ctx context.Context, token string) (*TokenInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, introspectMethod, wrapperspb.String(token), out); err != nil {
		c.logger.Debugf("Token introspection failed: %v", err)
		return nil, fmt.Errorf("failed to introspect token: %w", err)
	}

	fields := out.GetFields()
	userID, err := uuid.Parse(fields["userId"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("malformed introspection response: %w", err)
	}

	return &TokenInfo{
		UserID: userID,
		Email:  fields["email"].GetStringValue(),
		Role:   storages.Role(fields["role"].GetStringValue()),
	}, nil
}

// Close закрывает соединение с gRPC сервером
func (c *TokenClient) Close() error {
	if c.conn != nil {
		c.logger.Info("Closing connection to token service")
		return c.conn.Close()
	}
	return nil
}
