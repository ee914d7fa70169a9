package storage

import (
	"context"
	"errors"
	"time"
)

// ErrSignInNotFound is returned when a user has no recorded sign-in
var ErrSignInNotFound = errors.New("sign-in not found")

// SignIn summarizes how and when a user has signed in
type SignIn struct {
	UserID       string    `json:"user_id" firestore:"user_id"`
	Email        string    `json:"email" firestore:"email"`
	LastProvider string    `json:"last_provider" firestore:"last_provider"`
	FirstSeen    time.Time `json:"first_seen" firestore:"first_seen"`
	LastSeen     time.Time `json:"last_seen" firestore:"last_seen"`
	Count        int64     `json:"count" firestore:"count"`
}

// SignInEvent is one completed login
type SignInEvent struct {
	UserID   string
	Email    string
	Provider string
	At       time.Time
}

// Ledger records completed logins. Writes are best effort from the caller's
// point of view: a failed write never fails a login.
type Ledger interface {
	RecordSignIn(ctx context.Context, ev SignInEvent) error
	GetSignIn(ctx context.Context, userID string) (*SignIn, error)
	RecentSignIns(ctx context.Context, limit int) ([]SignIn, error)
	Close() error
}
