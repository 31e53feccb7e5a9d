package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/storages"
	"gw-auth-service/pkg"
)

// Сообщения аутентификации
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgEmailTaken         = "Email already registered"
)

// RegisterInput данные регистрации
type RegisterInput struct {
	Email    string
	Password string
	Name     *string
	Phone    *string
}

// AuthResult пользователь и выданная ему пара токенов
type AuthResult struct {
	User   storages.PublicUser `json:"user"`
	Tokens *security.TokenPair `json:"tokens"`
}

// AuthService регистрирует и аутентифицирует пользователей
type AuthService struct {
	users  storages.UserStore
	hasher *security.PasswordHasher
	tokens *security.TokenService
	auth   *security.Authenticator
	events eventSink
	logger *logrus.Logger

	// dummyHash сравнивается при неизвестном email, чтобы время ответа не выдавало наличие учетной записи
	dummyHash string
}

// NewAuthService создает сервис аутентификации
func NewAuthService(
	users storages.UserStore,
	hasher *security.PasswordHasher,
	tokens *security.TokenService,
	auth *security.Authenticator,
	publisher audit.Publisher,
	logger *logrus.Logger,
) (*AuthService, error) {
	dummyHash, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &AuthService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		auth:      auth,
		events:    eventSink{publisher: publisher, logger: logger},
		logger:    logger,
		dummyHash: dummyHash,
	}, nil
}

// Register создает учетную запись и выдает пару токенов
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := strings.TrimSpace(in.Email)
	if err := pkg.ValidateEmail(email); err != nil {
		return nil, apperr.Validation("invalid_email", "Invalid email format")
	}

	if check := security.ValidatePassword(in.Password); !check.Valid {
		return nil, apperr.Validation("weak_password", "Password does not meet requirements", check.Errors...)
	}

	if err := validateProfile(in.Name, in.Phone); err != nil {
		return nil, err
	}

	// Предварительная проверка; окончательно уникальность гарантирует хранилище
	if _, err := s.users.FindUserByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("email_taken", MsgEmailTaken)
	} else if !errors.Is(err, storages.ErrNotFound) {
		return nil, apperr.Wrap("user_lookup_failed", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return nil, apperr.Validation("weak_password", "Password is too long", "Password must be at most 72 bytes")
		}
		return nil, apperr.Internal("password_hash_failed", err)
	}

	user := &storages.User{
		Email:         email,
		PasswordHash:  hash,
		Name:          in.Name,
		Phone:         in.Phone,
		Role:          storages.RoleUser,
		AccountStatus: storages.AccountStatusActive,
		KYCStatus:     storages.KYCStatusPending,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storages.ErrDuplicateEmail) {
			return nil, apperr.Conflict("email_taken", MsgEmailTaken)
		}
		return nil, apperr.Wrap("user_create_failed", err)
	}

	tokens, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Internal("token_issue_failed", err)
	}

	s.events.emit(ctx, audit.NewEvent(audit.EventUserRegistered, user.ID))
	s.logger.Infof("User registered successfully: %s", user.ID)

	return &AuthResult{User: user.Public(), Tokens: tokens}, nil
}

// Login проверяет учетные данные. Все отказы возвращают одно и то же сообщение
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, storages.ErrNotFound) {
		return nil, apperr.Wrap("user_lookup_failed", err)
	}

	if user == nil {
		s.hasher.Compare(password, s.dummyHash)
		return nil, s.rejectLogin(ctx, uuid.Nil, "unknown_email")
	}

	passwordOK := s.hasher.Compare(password, user.PasswordHash)
	if !user.IsActive() {
		return nil, s.rejectLogin(ctx, user.ID, "account_"+string(user.AccountStatus))
	}
	if !passwordOK {
		return nil, s.rejectLogin(ctx, user.ID, "wrong_password")
	}

	tokens, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Internal("token_issue_failed", err)
	}

	s.logger.Infof("User authenticated successfully: %s", user.ID)
	return &AuthResult{User: user.Public(), Tokens: tokens}, nil
}

// rejectLogin фиксирует внутреннюю причину отказа и возвращает единообразную ошибку
func (s *AuthService) rejectLogin(ctx context.Context, userID uuid.UUID, reason string) error {
	s.logger.WithField("reason", reason).Warn("Failed authentication attempt")
	s.events.emit(ctx, audit.NewEvent(audit.EventUserLoginFailed, userID).WithMeta("reason", reason))
	return apperr.Unauthorized("invalid_credentials", MsgInvalidCredentials)
}

// Refresh выдает новую пару токенов по refresh токену.
// Старый refresh токен не отзывается и остается действительным до истечения срока
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*security.TokenPair, error) {
	identity, err := s.auth.AuthenticateToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	tokens, err := s.tokens.IssuePair(identity.UserID(), identity.Email())
	if err != nil {
		return nil, apperr.Internal("token_issue_failed", err)
	}
	return tokens, nil
}

// Logout фиксирует выход. Токены не хранятся, поэтому клиент просто удаляет их у себя
func (s *AuthService) Logout(ctx context.Context, identity security.Identity) {
	s.events.emit(ctx, audit.NewEvent(audit.EventUserLogout, identity.UserID()))
	s.logger.Infof("User logged out: %s", identity.UserID())
}

// GetByID возвращает публичную проекцию пользователя
func (s *AuthService) GetByID(ctx context.Context, userID uuid.UUID) (*storages.PublicUser, error) {
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user", "User not found")
	}
	public := user.Public()
	return &public, nil
}
