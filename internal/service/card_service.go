package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/issuer"
	"gw-auth-service/internal/security"
	"gw-auth-service/internal/storages"
	"gw-auth-service/pkg"
)

// Сообщения карт
const (
	MsgKYCRequired  = "KYC verification required before creating cards"
	MsgCardNotFound = "Card not found"
	MsgAccessDenied = "Access denied"
)

const maxNicknameLength = 100

// CardIssuer выпускает карты у внешнего эмитента
type CardIssuer interface {
	IssueCard(ctx context.Context, req issuer.CardRequest) (*issuer.IssuedCard, error)
}

// CardStorage хранилища, нужные сервису карт
type CardStorage interface {
	storages.UserStore
	storages.CardStore
}

// CreateCardInput параметры новой карты
type CreateCardInput struct {
	Brand    string
	Currency string
	Nickname *string
}

// CardUpdate изменяемые владельцем поля карты
type CardUpdate struct {
	Nickname *string
}

// CardService управляет картами с проверкой владельца
type CardService struct {
	store     CardStorage
	issuer    CardIssuer
	maxActive int
	events    eventSink
	logger    *logrus.Logger
}

// NewCardService создает сервис карт
func NewCardService(store CardStorage, cardIssuer CardIssuer, maxActive int, publisher audit.Publisher, logger *logrus.Logger) *CardService {
	return &CardService{
		store:     store,
		issuer:    cardIssuer,
		maxActive: maxActive,
		events:    eventSink{publisher: publisher, logger: logger},
		logger:    logger,
	}
}

func (s *CardService) limitError() error {
	return apperr.PreconditionFailed("card_limit_reached",
		fmt.Sprintf("Maximum card limit reached (%d cards per user)", s.maxActive))
}

// requireVerified проверяет, что владелец прошел KYC
func (s *CardService) requireVerified(ctx context.Context, userID uuid.UUID) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return notFoundOr(err, "user", "User not found")
	}
	if user.KYCStatus != storages.KYCStatusVerified {
		return apperr.PreconditionFailed("kyc_required", MsgKYCRequired)
	}
	return nil
}

// loadOwned загружает карту и проверяет владельца
func (s *CardService) loadOwned(ctx context.Context, identity security.Identity, cardID uuid.UUID) (*storages.Card, error) {
	card, err := s.store.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, notFoundOr(err, "card", MsgCardNotFound)
	}
	if !identity.CanAccess(card.UserID) {
		s.logger.Warnf("User %s denied access to card %s", identity.UserID(), cardID)
		return nil, apperr.Forbidden("card_access_denied", MsgAccessDenied)
	}
	return card, nil
}

// Create выпускает карту для пользователя, прошедшего KYC, в пределах лимита активных карт
func (s *CardService) Create(ctx context.Context, identity security.Identity, in CreateCardInput) (*storages.Card, error) {
	if err := s.requireVerified(ctx, identity.UserID()); err != nil {
		return nil, err
	}

	if in.Currency != "" {
		if err := pkg.ValidateCurrency(in.Currency); err != nil {
			return nil, apperr.Validation("invalid_currency", err.Error())
		}
	}
	if err := validateNickname(in.Nickname); err != nil {
		return nil, err
	}

	// Быстрый отказ до обращения к эмитенту; окончательная проверка выполняется при вставке
	count, err := s.store.CountActiveCardsByUserID(ctx, identity.UserID())
	if err != nil {
		return nil, apperr.Wrap("card_count_failed", err)
	}
	if count >= s.maxActive {
		return nil, s.limitError()
	}

	issued, err := s.issuer.IssueCard(ctx, issuer.CardRequest{
		UserID:   identity.UserID(),
		Brand:    in.Brand,
		Currency: in.Currency,
	})
	if err != nil {
		return nil, apperr.Internal("card_issue_failed", err)
	}

	card := &storages.Card{
		UserID:      identity.UserID(),
		CardToken:   issued.Token,
		LastFour:    issued.LastFour,
		Brand:       issued.Brand,
		ExpiryMonth: issued.ExpiryMonth,
		ExpiryYear:  issued.ExpiryYear,
		Status:      storages.CardStatusActive,
		Balance:     decimal.Zero,
		Currency:    issued.Currency,
		Nickname:    in.Nickname,
	}
	if err := s.store.CreateCardWithinLimit(ctx, card, s.maxActive); err != nil {
		if errors.Is(err, storages.ErrCardLimitReached) {
			return nil, s.limitError()
		}
		return nil, apperr.Wrap("card_create_failed", err)
	}

	s.events.emit(ctx, audit.NewEvent(audit.EventCardCreated, identity.UserID()).WithResource(card.ID))
	s.logger.Infof("Card created: ID=%s, User=%s", card.ID, identity.UserID())

	return card, nil
}

// List возвращает карты пользователя
func (s *CardService) List(ctx context.Context, identity security.Identity) ([]storages.Card, error) {
	cards, err := s.store.FindCardsByUserID(ctx, identity.UserID())
	if err != nil {
		return nil, apperr.Wrap("card_list_failed", err)
	}
	return cards, nil
}

// Get возвращает карту владельца
func (s *CardService) Get(ctx context.Context, identity security.Identity, cardID uuid.UUID) (*storages.Card, error) {
	return s.loadOwned(ctx, identity, cardID)
}

// Update меняет название карты
func (s *CardService) Update(ctx context.Context, identity security.Identity, cardID uuid.UUID, in CardUpdate) (*storages.Card, error) {
	if in.Nickname == nil {
		return nil, apperr.Validation("empty_patch", "No fields to update")
	}
	if err := validateNickname(in.Nickname); err != nil {
		return nil, err
	}

	if _, err := s.loadOwned(ctx, identity, cardID); err != nil {
		return nil, err
	}
	if err := s.requireVerified(ctx, identity.UserID()); err != nil {
		return nil, err
	}

	card, err := s.store.UpdateCard(ctx, cardID, storages.CardPatch{Nickname: in.Nickname})
	if err != nil {
		return nil, notFoundOr(err, "card", MsgCardNotFound)
	}
	return card, nil
}

// Freeze переводит активную карту в статус frozen
func (s *CardService) Freeze(ctx context.Context, identity security.Identity, cardID uuid.UUID) (*storages.Card, error) {
	if _, err := s.loadOwned(ctx, identity, cardID); err != nil {
		return nil, err
	}

	card, err := s.store.TransitionCardStatus(ctx, cardID, storages.CardStatusActive, storages.CardStatusFrozen, s.maxActive)
	if err != nil {
		return nil, s.transitionError(err, "Only active cards can be frozen")
	}

	s.events.emit(ctx, audit.NewEvent(audit.EventCardFrozen, identity.UserID()).WithResource(cardID))
	return card, nil
}

// Unfreeze возвращает замороженную карту в статус active с учетом лимита
func (s *CardService) Unfreeze(ctx context.Context, identity security.Identity, cardID uuid.UUID) (*storages.Card, error) {
	if _, err := s.loadOwned(ctx, identity, cardID); err != nil {
		return nil, err
	}
	if err := s.requireVerified(ctx, identity.UserID()); err != nil {
		return nil, err
	}

	card, err := s.store.TransitionCardStatus(ctx, cardID, storages.CardStatusFrozen, storages.CardStatusActive, s.maxActive)
	if err != nil {
		return nil, s.transitionError(err, "Only frozen cards can be unfrozen")
	}

	s.events.emit(ctx, audit.NewEvent(audit.EventCardUnfrozen, identity.UserID()).WithResource(cardID))
	return card, nil
}

func (s *CardService) transitionError(err error, conflictMessage string) error {
	switch {
	case errors.Is(err, storages.ErrStatusConflict):
		return apperr.Conflict("invalid_card_status", conflictMessage)
	case errors.Is(err, storages.ErrCardLimitReached):
		return s.limitError()
	default:
		return notFoundOr(err, "card", MsgCardNotFound)
	}
}

// Delete удаляет карту без истории транзакций
func (s *CardService) Delete(ctx context.Context, identity security.Identity, cardID uuid.UUID) error {
	if _, err := s.loadOwned(ctx, identity, cardID); err != nil {
		return err
	}

	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		if errors.Is(err, storages.ErrCardHasHistory) {
			return apperr.Conflict("card_has_transactions", "Cannot delete a card with transaction history")
		}
		return notFoundOr(err, "card", MsgCardNotFound)
	}

	s.events.emit(ctx, audit.NewEvent(audit.EventCardDeleted, identity.UserID()).WithResource(cardID))
	s.logger.Infof("Card deleted: ID=%s, User=%s", cardID, identity.UserID())
	return nil
}

func validateNickname(nickname *string) error {
	if nickname == nil {
		return nil
	}
	*nickname = strings.TrimSpace(*nickname)
	if *nickname == "" || utf8.RuneCountInString(*nickname) > maxNicknameLength {
		return apperr.Validation("invalid_nickname", "Card nickname must be between 1 and 100 characters")
	}
	return nil
}
