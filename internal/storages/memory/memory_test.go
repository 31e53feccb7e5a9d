package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-auth-service/internal/storages"
)

func newUser(t *testing.T, s *Storage, email string) *storages.User {
	t.Helper()

	user := &storages.User{Email: email, PasswordHash: "hash"}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func newCard(t *testing.T, s *Storage, userID uuid.UUID, balance string) *storages.Card {
	t.Helper()

	card := &storages.Card{
		UserID:   userID,
		LastFour: "4242",
		Balance:  decimal.RequireFromString(balance),
		Currency: "USD",
	}
	if err := s.CreateCardWithinLimit(context.Background(), card, 5); err != nil {
		t.Fatalf("CreateCardWithinLimit failed: %v", err)
	}
	return card
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := New()
	newUser(t, s, "a@b.com")

	err := s.CreateUser(context.Background(), &storages.User{Email: "a@b.com"})
	if !errors.Is(err, storages.ErrDuplicateEmail) {
		t.Fatalf("Expected ErrDuplicateEmail, got %v", err)
	}

	// Email сравнивается с учетом регистра
	if err := s.CreateUser(context.Background(), &storages.User{Email: "A@b.com"}); err != nil {
		t.Fatalf("Expected differently cased email to be accepted, got %v", err)
	}
}

func TestCreateUserDefaults(t *testing.T) {
	s := New()
	user := newUser(t, s, "a@b.com")

	stored, err := s.FindUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("FindUserByID failed: %v", err)
	}
	if stored.Role != storages.RoleUser || stored.AccountStatus != storages.AccountStatusActive || stored.KYCStatus != storages.KYCStatusPending {
		t.Fatalf("Unexpected defaults: %+v", stored)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	user := newUser(t, s, "a@b.com")

	found, _ := s.FindUserByEmail(context.Background(), "a@b.com")
	found.Role = storages.RoleAdmin

	again, _ := s.FindUserByID(context.Background(), user.ID)
	if again.Role != storages.RoleUser {
		t.Fatal("Expected stored user to be unaffected by caller mutation")
	}
}

func TestUpdateUserPatch(t *testing.T) {
	s := New()
	user := newUser(t, s, "a@b.com")
	name := "Alice"
	status := storages.AccountStatusSuspended

	updated, err := s.UpdateUser(context.Background(), user.ID, storages.UserPatch{Name: &name, AccountStatus: &status})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if *updated.Name != "Alice" || updated.AccountStatus != storages.AccountStatusSuspended {
		t.Fatalf("Patch not applied: %+v", updated)
	}

	if _, err := s.UpdateUser(context.Background(), uuid.New(), storages.UserPatch{Name: &name}); !errors.Is(err, storages.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestCountActiveCardsIgnoresFrozen(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := newUser(t, s, "a@b.com")

	var cards []*storages.Card
	for i := 0; i < 5; i++ {
		cards = append(cards, newCard(t, s, user.ID, "0"))
	}

	err := s.CreateCardWithinLimit(ctx, &storages.Card{UserID: user.ID}, 5)
	if !errors.Is(err, storages.ErrCardLimitReached) {
		t.Fatalf("Expected ErrCardLimitReached, got %v", err)
	}

	if _, err := s.TransitionCardStatus(ctx, cards[0].ID, storages.CardStatusActive, storages.CardStatusFrozen, 5); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}

	count, _ := s.CountActiveCardsByUserID(ctx, user.ID)
	if count != 4 {
		t.Fatalf("Expected 4 active cards, got %d", count)
	}

	newCard(t, s, user.ID, "0")

	// Разморозка снова упирается в лимит
	_, err = s.TransitionCardStatus(ctx, cards[0].ID, storages.CardStatusFrozen, storages.CardStatusActive, 5)
	if !errors.Is(err, storages.ErrCardLimitReached) {
		t.Fatalf("Expected unfreeze to hit the limit, got %v", err)
	}
}

func TestConcurrentCardCreationRespectsLimit(t *testing.T) {
	s := New()
	user := newUser(t, s, "a@b.com")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.CreateCardWithinLimit(context.Background(), &storages.Card{UserID: user.ID}, 5)
		}()
	}
	wg.Wait()

	count, _ := s.CountActiveCardsByUserID(context.Background(), user.ID)
	if count != 5 {
		t.Fatalf("Expected exactly 5 active cards, got %d", count)
	}
}

func TestTransitionCardStatusConflict(t *testing.T) {
	s := New()
	user := newUser(t, s, "a@b.com")
	card := newCard(t, s, user.ID, "0")

	_, err := s.TransitionCardStatus(context.Background(), card.ID, storages.CardStatusFrozen, storages.CardStatusActive, 5)
	if !errors.Is(err, storages.ErrStatusConflict) {
		t.Fatalf("Expected ErrStatusConflict, got %v", err)
	}
}

func TestCreateTransactionUpdatesBalance(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := newUser(t, s, "a@b.com")
	card := newCard(t, s, user.ID, "100.00")

	tx := &storages.Transaction{
		UserID: user.ID,
		CardID: card.ID,
		Amount: decimal.RequireFromString("50.00"),
		Status: storages.TransactionStatusCompleted,
	}
	if err := s.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}

	updated, _ := s.FindCardByID(ctx, card.ID)
	if !updated.Balance.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("Expected balance 150.00, got %s", updated.Balance)
	}

	if err := s.DeleteTransaction(ctx, tx.ID); !errors.Is(err, storages.ErrStatusConflict) {
		t.Fatalf("Expected completed transaction deletion to fail, got %v", err)
	}
}

func TestCreateTransactionChecksCard(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := newUser(t, s, "a@b.com")
	other := newUser(t, s, "c@d.com")
	card := newCard(t, s, owner.ID, "0")

	err := s.CreateTransaction(ctx, &storages.Transaction{UserID: other.ID, CardID: card.ID, Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, storages.ErrOwnershipMismatch) {
		t.Fatalf("Expected ErrOwnershipMismatch, got %v", err)
	}

	s.TransitionCardStatus(ctx, card.ID, storages.CardStatusActive, storages.CardStatusFrozen, 5)
	err = s.CreateTransaction(ctx, &storages.Transaction{UserID: owner.ID, CardID: card.ID, Amount: decimal.NewFromInt(1)})
	if !errors.Is(err, storages.ErrCardNotActive) {
		t.Fatalf("Expected ErrCardNotActive, got %v", err)
	}
}

func TestSettleTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := newUser(t, s, "a@b.com")
	card := newCard(t, s, user.ID, "10")

	tx := &storages.Transaction{
		UserID: user.ID,
		CardID: card.ID,
		Amount: decimal.NewFromInt(5),
		Status: storages.TransactionStatusPending,
	}
	s.CreateTransaction(ctx, tx)

	pendingCard, _ := s.FindCardByID(ctx, card.ID)
	if !pendingCard.Balance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("Expected pending transaction not to touch balance, got %s", pendingCard.Balance)
	}

	if _, err := s.SettleTransaction(ctx, tx.ID, storages.TransactionStatusCompleted); err != nil {
		t.Fatalf("SettleTransaction failed: %v", err)
	}
	settledCard, _ := s.FindCardByID(ctx, card.ID)
	if !settledCard.Balance.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("Expected balance 15, got %s", settledCard.Balance)
	}

	if _, err := s.SettleTransaction(ctx, tx.ID, storages.TransactionStatusFailed); !errors.Is(err, storages.ErrStatusConflict) {
		t.Fatalf("Expected second settlement to conflict, got %v", err)
	}
}

func TestBalanceOverflowIsRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := newUser(t, s, "a@b.com")
	card := newCard(t, s, user.ID, "999999999999999999.00")

	completed := &storages.Transaction{
		UserID: user.ID,
		CardID: card.ID,
		Amount: decimal.NewFromInt(1),
		Status: storages.TransactionStatusCompleted,
	}
	if err := s.CreateTransaction(ctx, completed); !errors.Is(err, storages.ErrBalanceOverflow) {
		t.Fatalf("Expected ErrBalanceOverflow, got %v", err)
	}
	if _, err := s.FindTransactionByID(ctx, completed.ID); !errors.Is(err, storages.ErrNotFound) {
		t.Fatalf("Expected rejected transaction not to be stored, got %v", err)
	}

	pending := &storages.Transaction{
		UserID: user.ID,
		CardID: card.ID,
		Amount: decimal.NewFromInt(1),
		Status: storages.TransactionStatusPending,
	}
	if err := s.CreateTransaction(ctx, pending); err != nil {
		t.Fatalf("Expected pending transaction to be accepted, got %v", err)
	}
	if _, err := s.SettleTransaction(ctx, pending.ID, storages.TransactionStatusCompleted); !errors.Is(err, storages.ErrBalanceOverflow) {
		t.Fatalf("Expected settlement to overflow, got %v", err)
	}

	stored, _ := s.FindTransactionByID(ctx, pending.ID)
	if stored.Status != storages.TransactionStatusPending {
		t.Fatalf("Expected transaction to stay pending, got %s", stored.Status)
	}
	unchanged, _ := s.FindCardByID(ctx, card.ID)
	if !unchanged.Balance.Equal(decimal.RequireFromString("999999999999999999.00")) {
		t.Fatalf("Expected balance to stay unchanged, got %s", unchanged.Balance)
	}
}

func TestDeleteCardWithHistory(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := newUser(t, s, "a@b.com")
	card := newCard(t, s, user.ID, "0")
	empty := newCard(t, s, user.ID, "0")

	s.CreateTransaction(ctx, &storages.Transaction{UserID: user.ID, CardID: card.ID, Amount: decimal.NewFromInt(1), Status: storages.TransactionStatusFailed})

	if err := s.DeleteCard(ctx, card.ID); !errors.Is(err, storages.ErrCardHasHistory) {
		t.Fatalf("Expected ErrCardHasHistory, got %v", err)
	}
	if err := s.DeleteCard(ctx, empty.ID); err != nil {
		t.Fatalf("Expected card without history to be deleted, got %v", err)
	}
}

func TestStatsByUserID(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := newUser(t, s, "a@b.com")
	card := newCard(t, s, user.ID, "0")

	for _, tt := range []struct {
		amount string
		status storages.TransactionStatus
	}{
		{"10.00", storages.TransactionStatusCompleted},
		{"20.00", storages.TransactionStatusPending},
		{"5.00", storages.TransactionStatusFailed},
	} {
		s.CreateTransaction(ctx, &storages.Transaction{
			UserID: user.ID,
			CardID: card.ID,
			Amount: decimal.RequireFromString(tt.amount),
			Status: tt.status,
		})
	}

	stats, err := s.StatsByUserID(ctx, user.ID)
	if err != nil {
		t.Fatalf("StatsByUserID failed: %v", err)
	}
	if stats.Total != 3 || stats.Completed != 1 || stats.Pending != 1 || stats.Failed != 1 {
		t.Fatalf("Unexpected counts: %+v", stats)
	}
	if !stats.TotalAmount.Equal(decimal.RequireFromString("35")) || !stats.AverageAmount.Equal(decimal.RequireFromString("11.67")) {
		t.Fatalf("Unexpected amounts: total=%s avg=%s", stats.TotalAmount, stats.AverageAmount)
	}
}

func TestFindTransactionsFilter(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := newUser(t, s, "a@b.com")
	first := newCard(t, s, user.ID, "0")
	second := newCard(t, s, user.ID, "0")

	s.CreateTransaction(ctx, &storages.Transaction{UserID: user.ID, CardID: first.ID, Amount: decimal.NewFromInt(1), Status: storages.TransactionStatusCompleted})
	s.CreateTransaction(ctx, &storages.Transaction{UserID: user.ID, CardID: second.ID, Amount: decimal.NewFromInt(2), Status: storages.TransactionStatusPending})

	byCard, _ := s.FindTransactionsByUserID(ctx, user.ID, storages.TransactionFilter{CardID: &second.ID})
	if len(byCard) != 1 || byCard[0].CardID != second.ID {
		t.Fatalf("Expected one transaction for second card, got %+v", byCard)
	}

	byStatus, _ := s.FindTransactions(ctx, storages.TransactionFilter{Status: storages.TransactionStatusCompleted})
	if len(byStatus) != 1 || byStatus[0].Status != storages.TransactionStatusCompleted {
		t.Fatalf("Expected one completed transaction, got %+v", byStatus)
	}

	limited, _ := s.FindTransactionsByUserID(ctx, user.ID, storages.TransactionFilter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("Expected limit to apply, got %d", len(limited))
	}
}
