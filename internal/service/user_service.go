package service

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/storages"
)

const maxNameLength = 255

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// ProfileUpdate поля, которые пользователь меняет сам
type ProfileUpdate struct {
	Name  *string
	Phone *string
}

// AdminUserUpdate поля, которые меняет только администратор
type AdminUserUpdate struct {
	AccountStatus *storages.AccountStatus
	Role          *storages.Role
	KYCStatus     *storages.KYCStatus
}

// UserService управляет учетными записями
type UserService struct {
	users  storages.UserStore
	events eventSink
	logger *logrus.Logger
}

// NewUserService создает сервис пользователей
func NewUserService(users storages.UserStore, publisher audit.Publisher, logger *logrus.Logger) *UserService {
	return &UserService{
		users:  users,
		events: eventSink{publisher: publisher, logger: logger},
		logger: logger,
	}
}

// Get возвращает пользователя; доступно самому пользователю и администратору
func (s *UserService) Get(ctx context.Context, identity security.Identity, userID uuid.UUID) (*storages.PublicUser, error) {
	if !identity.CanAccess(userID) && !identity.IsAdmin() {
		return nil, apperr.Forbidden("user_access_denied", "Access denied")
	}

	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, notFoundOr(err, "user", "User not found")
	}
	public := user.Public()
	return &public, nil
}

// List возвращает пользователей по фильтру
func (s *UserService) List(ctx context.Context, _ security.AdminIdentity, filter storages.UserFilter) ([]storages.PublicUser, error) {
	if filter.AccountStatus != "" && !validAccountStatus(filter.AccountStatus) {
		return nil, apperr.Validation("invalid_filter", "Invalid account status filter")
	}
	if filter.Role != "" && !validRole(filter.Role) {
		return nil, apperr.Validation("invalid_filter", "Invalid role filter")
	}
	filter.Limit = normalizeLimit(filter.Limit)

	users, err := s.users.FindUsers(ctx, filter)
	if err != nil {
		return nil, apperr.Wrap("user_list_failed", err)
	}

	result := make([]storages.PublicUser, 0, len(users))
	for i := range users {
		result = append(result, users[i].Public())
	}
	return result, nil
}

// UpdateProfile меняет имя и телефон; только для владельца учетной записи
func (s *UserService) UpdateProfile(ctx context.Context, identity security.Identity, userID uuid.UUID, in ProfileUpdate) (*storages.PublicUser, error) {
	if !identity.CanAccess(userID) {
		return nil, apperr.Forbidden("user_access_denied", "Access denied")
	}
	if in.Name == nil && in.Phone == nil {
		return nil, apperr.Validation("empty_patch", "No fields to update")
	}
	if err := validateProfile(in.Name, in.Phone); err != nil {
		return nil, err
	}

	user, err := s.users.UpdateUser(ctx, userID, storages.UserPatch{Name: in.Name, Phone: in.Phone})
	if err != nil {
		return nil, notFoundOr(err, "user", "User not found")
	}

	public := user.Public()
	return &public, nil
}

// AdminUpdate меняет статус, роль и KYC статус пользователя
func (s *UserService) AdminUpdate(ctx context.Context, admin security.AdminIdentity, userID uuid.UUID, in AdminUserUpdate) (*storages.PublicUser, error) {
	if in.AccountStatus == nil && in.Role == nil && in.KYCStatus == nil {
		return nil, apperr.Validation("empty_patch", "No fields to update")
	}
	if in.AccountStatus != nil && !validAccountStatus(*in.AccountStatus) {
		return nil, apperr.Validation("invalid_account_status", "Invalid account status")
	}
	if in.Role != nil && !validRole(*in.Role) {
		return nil, apperr.Validation("invalid_role", "Invalid role")
	}
	if in.KYCStatus != nil && !validKYCStatus(*in.KYCStatus) {
		return nil, apperr.Validation("invalid_kyc_status", "Invalid KYC status")
	}

	user, err := s.users.UpdateUser(ctx, userID, storages.UserPatch{
		AccountStatus: in.AccountStatus,
		Role:          in.Role,
		KYCStatus:     in.KYCStatus,
	})
	if err != nil {
		return nil, notFoundOr(err, "user", "User not found")
	}

	s.logger.WithFields(logrus.Fields{
		"admin_id": admin.UserID(),
		"user_id":  userID,
	}).Info("User updated by admin")

	public := user.Public()
	return &public, nil
}

// Delete помечает учетную запись удаленной; запись сохраняется
func (s *UserService) Delete(ctx context.Context, identity security.Identity, userID uuid.UUID) error {
	if !identity.CanAccess(userID) && !identity.IsAdmin() {
		return apperr.Forbidden("user_access_denied", "Access denied")
	}

	deleted := storages.AccountStatusDeleted
	if _, err := s.users.UpdateUser(ctx, userID, storages.UserPatch{AccountStatus: &deleted}); err != nil {
		return notFoundOr(err, "user", "User not found")
	}

	event := audit.NewEvent(audit.EventUserDeleted, userID)
	if identity.UserID() != userID {
		event = event.WithActor(identity.UserID())
	}
	s.events.emit(ctx, event)

	s.logger.Infof("User soft-deleted: %s", userID)
	return nil
}

// validateProfile проверяет имя и телефон, если они переданы
func validateProfile(name, phone *string) error {
	var details []string

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" || utf8.RuneCountInString(trimmed) > maxNameLength {
			details = append(details, "Name must be between 1 and 255 characters")
		}
		*name = trimmed
	}
	if phone != nil && !phonePattern.MatchString(*phone) {
		details = append(details, "Phone number must contain 7 to 15 digits")
	}

	if len(details) > 0 {
		return apperr.Validation("invalid_profile", "Invalid profile data", details...)
	}
	return nil
}

func validAccountStatus(status storages.AccountStatus) bool {
	switch status {
	case storages.AccountStatusActive, storages.AccountStatusSuspended, storages.AccountStatusDeleted:
		return true
	}
	return false
}

func validRole(role storages.Role) bool {
	return role == storages.RoleUser || role == storages.RoleAdmin
}

func validKYCStatus(status storages.KYCStatus) bool {
	switch status {
	case storages.KYCStatusPending, storages.KYCStatusVerified, storages.KYCStatusRejected:
		return true
	}
	return false
}
