package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"gw-auth-service/internal/apperr"
	"gw-auth-service/internal/audit"
	"gw-auth-service/internal/storages"
)

func TestCreateCardRequiresVerifiedKYC(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "pending@example.com")

	_, err := env.cards.Create(context.Background(), id, CreateCardInput{})
	assertKind(t, err, apperr.KindPreconditionFailed)

	appErr, _ := apperr.As(err)
	if appErr.Message != MsgKYCRequired {
		t.Fatalf("Expected %q, got %q", MsgKYCRequired, appErr.Message)
	}
}

func TestCreateCardDefaults(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "verified@example.com")

	card, err := env.cards.Create(context.Background(), id, CreateCardInput{Nickname: strPtr(" Travel ")})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if card.UserID != id.UserID() {
		t.Fatalf("Expected card owned by %s, got %s", id.UserID(), card.UserID)
	}
	if card.Status != storages.CardStatusActive || !card.Balance.IsZero() {
		t.Fatalf("Expected active card with zero balance, got %s %s", card.Status, card.Balance)
	}
	if card.Brand != "visa" || card.Currency != "USD" || len(card.LastFour) != 4 {
		t.Fatalf("Unexpected issued card: %+v", card)
	}
	if card.Nickname == nil || *card.Nickname != "Travel" {
		t.Fatalf("Expected trimmed nickname, got %v", card.Nickname)
	}
	if !env.events.has(audit.EventCardCreated) {
		t.Fatalf("Expected card.created event, got %v", env.events.types())
	}
}

func TestCreateCardRejectsUnsupportedCurrency(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "currency@example.com")

	_, err := env.cards.Create(context.Background(), id, CreateCardInput{Currency: "GBP"})
	assertKind(t, err, apperr.KindValidation)
}

func TestCardLimitCountsOnlyActiveCards(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "limit@example.com")
	ctx := context.Background()

	var first *storages.Card
	for i := 0; i < 5; i++ {
		card, err := env.cards.Create(ctx, id, CreateCardInput{})
		if err != nil {
			t.Fatalf("Create #%d failed: %v", i+1, err)
		}
		if first == nil {
			first = card
		}
	}

	_, err := env.cards.Create(ctx, id, CreateCardInput{})
	assertKind(t, err, apperr.KindPreconditionFailed)
	appErr, _ := apperr.As(err)
	if appErr.Message != "Maximum card limit reached (5 cards per user)" {
		t.Fatalf("Unexpected limit message: %q", appErr.Message)
	}

	if _, err := env.cards.Freeze(ctx, id, first.ID); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if _, err := env.cards.Create(ctx, id, CreateCardInput{}); err != nil {
		t.Fatalf("Expected creation to succeed after freezing a card: %v", err)
	}

	// пять активных карт: разморозка превысила бы лимит
	_, err = env.cards.Unfreeze(ctx, id, first.ID)
	assertKind(t, err, apperr.KindPreconditionFailed)
}

func TestConcurrentCardCreationHonoursLimit(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "race@example.com")

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.cards.Create(context.Background(), id, CreateCardInput{})
		}()
	}
	wg.Wait()

	count, err := env.store.CountActiveCardsByUserID(context.Background(), id.UserID())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 5 {
		t.Fatalf("Expected exactly 5 active cards, got %d", count)
	}
}

func TestFreezeUnfreezeTransitions(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "freeze@example.com")
	ctx := context.Background()

	card, err := env.cards.Create(ctx, id, CreateCardInput{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = env.cards.Unfreeze(ctx, id, card.ID)
	assertKind(t, err, apperr.KindConflict)

	frozen, err := env.cards.Freeze(ctx, id, card.ID)
	if err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}
	if frozen.Status != storages.CardStatusFrozen {
		t.Fatalf("Expected frozen card, got %s", frozen.Status)
	}

	_, err = env.cards.Freeze(ctx, id, card.ID)
	assertKind(t, err, apperr.KindConflict)

	active, err := env.cards.Unfreeze(ctx, id, card.ID)
	if err != nil {
		t.Fatalf("Unfreeze failed: %v", err)
	}
	if active.Status != storages.CardStatusActive {
		t.Fatalf("Expected active card, got %s", active.Status)
	}
}

func TestCardOwnershipIsEnforced(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerVerified(t, "owner@example.com")
	other := env.registerVerified(t, "other@example.com")
	ctx := context.Background()

	card, err := env.cards.Create(ctx, owner, CreateCardInput{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	operations := map[string]func() error{
		"get": func() error {
			_, err := env.cards.Get(ctx, other, card.ID)
			return err
		},
		"update": func() error {
			_, err := env.cards.Update(ctx, other, card.ID, CardUpdate{Nickname: strPtr("mine")})
			return err
		},
		"freeze": func() error {
			_, err := env.cards.Freeze(ctx, other, card.ID)
			return err
		},
		"unfreeze": func() error {
			_, err := env.cards.Unfreeze(ctx, other, card.ID)
			return err
		},
		"delete": func() error {
			return env.cards.Delete(ctx, other, card.ID)
		},
	}

	for name, op := range operations {
		t.Run(name, func(t *testing.T) {
			assertKind(t, op(), apperr.KindForbidden)
		})
	}

	cards, err := env.cards.List(ctx, other)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(cards) != 0 {
		t.Fatalf("Expected no cards for other user, got %d", len(cards))
	}
}

func TestAdminCannotManageForeignCards(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerVerified(t, "holder@example.com")
	admin := env.registerAdmin(t, "root@example.com")

	card, err := env.cards.Create(context.Background(), owner, CreateCardInput{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = env.cards.Get(context.Background(), admin.Identity, card.ID)
	assertKind(t, err, apperr.KindForbidden)
}

func TestCardNotFound(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "missing@example.com")

	_, err := env.cards.Get(context.Background(), id, uuid.New())
	assertKind(t, err, apperr.KindNotFound)
}

func TestUpdateCardNickname(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "nick@example.com")
	ctx := context.Background()

	card, err := env.cards.Create(ctx, id, CreateCardInput{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = env.cards.Update(ctx, id, card.ID, CardUpdate{})
	assertKind(t, err, apperr.KindValidation)

	updated, err := env.cards.Update(ctx, id, card.ID, CardUpdate{Nickname: strPtr("Groceries")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Nickname == nil || *updated.Nickname != "Groceries" {
		t.Fatalf("Expected nickname Groceries, got %v", updated.Nickname)
	}
}

func TestDeleteCard(t *testing.T) {
	env := newTestEnv(t)
	id := env.registerVerified(t, "delete@example.com")
	ctx := context.Background()

	unused, err := env.cards.Create(ctx, id, CreateCardInput{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := env.cards.Delete(ctx, id, unused.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err = env.cards.Get(ctx, id, unused.ID)
	assertKind(t, err, apperr.KindNotFound)

	used, err := env.cards.Create(ctx, id, CreateCardInput{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err = env.transactions.Create(ctx, id, CreateTransactionInput{
		CardID:       used.ID,
		Amount:       decimal.NewFromInt(10),
		Currency:     "USD",
		MerchantName: "Shop",
	})
	if err != nil {
		t.Fatalf("Transaction create failed: %v", err)
	}

	assertKind(t, env.cards.Delete(ctx, id, used.ID), apperr.KindConflict)
}
