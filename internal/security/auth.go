package security

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/storages"
)

// Сообщения ошибок аутентификации
const (
	MsgNoToken       = "No token provided"
	MsgInvalidToken  = "Invalid or expired token"
	MsgAdminRequired = "Admin access required"
)

// Identity проверенная личность запроса. Создается только Authenticator
type Identity struct {
	userID uuid.UUID
	email  string
	role   storages.Role
}

// UserID возвращает ID пользователя
func (i Identity) UserID() uuid.UUID { return i.userID }

// Email возвращает email пользователя
func (i Identity) Email() string { return i.email }

// Role возвращает роль пользователя
func (i Identity) Role() storages.Role { return i.role }

// IsAdmin проверяет роль администратора
func (i Identity) IsAdmin() bool { return i.role == storages.RoleAdmin }

// CanAccess проверяет, что личность владеет ресурсом
func (i Identity) CanAccess(ownerID uuid.UUID) bool {
	return i.userID != uuid.Nil && i.userID == ownerID
}

// AdminIdentity личность, прошедшая проверку роли. Получается только через RequireAdmin
type AdminIdentity struct {
	Identity
}

// RequireAdmin проверяет роль администратора у уже аутентифицированной личности
func RequireAdmin(id Identity) (AdminIdentity, error) {
	if id.userID == uuid.Nil || !id.IsAdmin() {
		return AdminIdentity{}, apperr.Forbidden("admin_required", MsgAdminRequired)
	}
	return AdminIdentity{Identity: id}, nil
}

// UserFinder источник пользователей для проверки токена
type UserFinder interface {
	FindUserByID(ctx context.Context, id uuid.UUID) (*storages.User, error)
}

// authState накапливает результат шагов аутентификации
type authState struct {
	header string
	token  string
	claims *Claims
	user   *storages.User
}

type authStep func(ctx context.Context, st *authState) error

// Authenticator проверяет bearer токен и загружает пользователя
type Authenticator struct {
	tokens *TokenService
	users  UserFinder
	logger *logrus.Logger
}

// NewAuthenticator создает цепочку аутентификации
func NewAuthenticator(tokens *TokenService, users UserFinder, logger *logrus.Logger) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
}

// Authenticate проверяет значение заголовка Authorization
func (a *Authenticator) Authenticate(ctx context.Context, authorizationHeader string) (Identity, error) {
	st := &authState{header: authorizationHeader}
	return a.run(ctx, st, a.extractBearer, a.verifyToken, a.loadUser, a.requireActive)
}

// AuthenticateToken проверяет уже извлеченный токен
func (a *Authenticator) AuthenticateToken(ctx context.Context, token string) (Identity, error) {
	st := &authState{token: token}
	if token == "" {
		return Identity{}, apperr.Unauthorized("token_missing", MsgNoToken)
	}
	return a.run(ctx, st, a.verifyToken, a.loadUser, a.requireActive)
}

func (a *Authenticator) run(ctx context.Context, st *authState, steps ...authStep) (Identity, error) {
	for _, step := range steps {
		if err := step(ctx, st); err != nil {
			return Identity{}, err
		}
	}
	return Identity{
		userID: st.user.ID,
		email:  st.user.Email,
		role:   st.user.Role,
	}, nil
}

func (a *Authenticator) extractBearer(_ context.Context, st *authState) error {
	if st.header == "" {
		return apperr.Unauthorized("token_missing", MsgNoToken)
	}

	scheme, token, ok := strings.Cut(st.header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return apperr.Unauthorized("token_missing", MsgNoToken)
	}

	st.token = token
	return nil
}

func (a *Authenticator) verifyToken(_ context.Context, st *authState) error {
	claims, err := a.tokens.Verify(st.token)
	if err != nil {
		a.logger.Warnf("Token verification failed: %v", err)
		return apperr.Unauthorized("token_invalid", MsgInvalidToken)
	}
	st.claims = claims
	return nil
}

func (a *Authenticator) loadUser(ctx context.Context, st *authState) error {
	userID, err := uuid.Parse(st.claims.UserID)
	if err != nil {
		return apperr.Unauthorized("token_invalid", MsgInvalidToken)
	}

	user, err := a.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storages.ErrNotFound) {
			a.logger.Warnf("Token references unknown user: %s", userID)
			return apperr.Unauthorized("token_user_missing", MsgInvalidToken)
		}
		return apperr.Wrap("user_lookup_failed", err)
	}

	st.user = user
	return nil
}

func (a *Authenticator) requireActive(_ context.Context, st *authState) error {
	if !st.user.IsActive() {
		a.logger.Warnf("Token presented for inactive account: %s", st.user.ID)
		return apperr.Unauthorized("account_inactive", MsgInvalidToken)
	}
	return nil
}
