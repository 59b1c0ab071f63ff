package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
)

func TestStoreGetUserByEmailNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("ghost@example.com").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetUserByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestStoreIssueTokenUnderCap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT count").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("INSERT INTO oauth_access_tokens").
		WithArgs(pgxmock.AnyArg(), userID, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"access_token", "user_id", "expires_at", "created_at"}).
			AddRow("tok", userID, now.Add(tokenTTL), now))

	if _, err := store.IssueToken(context.Background(), userID, "app-key"); err != nil {
		t.Fatalf("issue token: %v", err)
	}
}

func TestStoreIssueTokenEvictsOldest(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT count").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(maxActiveTokens))
	mock.ExpectExec("DELETE FROM oauth_access_tokens").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("INSERT INTO oauth_access_tokens").
		WithArgs(pgxmock.AnyArg(), userID, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"access_token", "user_id", "expires_at", "created_at"}).
			AddRow("tok", userID, now.Add(tokenTTL), now))

	if _, err := store.IssueToken(context.Background(), userID, "app-key"); err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreLookupTokenMiss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	mock.ExpectQuery("SELECT access_token").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.LookupToken(context.Background(), "nope")
	if !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestMintToken(t *testing.T) {
	userID := uuid.New()
	at := time.Now()

	token := mintToken(userID, "app-key", at)
	if len(token) != 64 {
		t.Fatalf("expected 64-char token, got %d", len(token))
	}
	if token != mintToken(userID, "app-key", at) {
		t.Fatal("expected deterministic token for same inputs")
	}
	if token == mintToken(userID, "other-key", at) {
		t.Fatal("expected app key to change the token")
	}
}
