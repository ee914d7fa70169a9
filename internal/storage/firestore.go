package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/bid-front/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreLedger stores sign-ins in a Firestore collection, one document per user
type FirestoreLedger struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreLedger creates a Firestore-backed ledger
func NewFirestoreLedger(ctx context.Context, projectID, database, collection string) (*FirestoreLedger, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error

	// Firestore client with custom database
	if database != "" && database != "(default)" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Firestore ledger ready", map[string]any{
		"project":    projectID,
		"database":   database,
		"collection": collection,
	})

	return &FirestoreLedger{client: client, collection: collection}, nil
}

// RecordSignIn creates or updates the user's document. The read-modify-write
// runs in a transaction so concurrent logins of one user both count.
func (s *FirestoreLedger) RecordSignIn(ctx context.Context, ev SignInEvent) error {
	ref := s.client.Collection(s.collection).Doc(ev.UserID)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return tx.Set(ref, SignIn{
				UserID:       ev.UserID,
				Email:        ev.Email,
				LastProvider: ev.Provider,
				FirstSeen:    ev.At,
				LastSeen:     ev.At,
				Count:        1,
			})
		}
		if err != nil {
			return fmt.Errorf("failed to get sign-in: %w", err)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "email", Value: ev.Email},
			{Path: "last_provider", Value: ev.Provider},
			{Path: "last_seen", Value: ev.At},
			{Path: "count", Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to record sign-in: %w", err)
	}
	return nil
}

func (s *FirestoreLedger) GetSignIn(ctx context.Context, userID string) (*SignIn, error) {
	doc, err := s.client.Collection(s.collection).Doc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSignInNotFound
		}
		return nil, fmt.Errorf("failed to get sign-in: %w", err)
	}

	var entry SignIn
	if err := doc.DataTo(&entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sign-in: %w", err)
	}
	return &entry, nil
}

// RecentSignIns returns up to limit users ordered by most recent sign-in
func (s *FirestoreLedger) RecentSignIns(ctx context.Context, limit int) ([]SignIn, error) {
	iter := s.client.Collection(s.collection).
		OrderBy("last_seen", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	var out []SignIn
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate sign-ins: %w", err)
		}
		var entry SignIn
		if err := doc.DataTo(&entry); err != nil {
			log.LogWarnWithFields("storage", "Skipping unreadable sign-in document", map[string]any{
				"id":    doc.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *FirestoreLedger) Close() error {
	return s.client.Close()
}
