package session

import (
	"context"
	"fmt"

	"deepthinks/internal/memory"
)

// Session identifies one conversation of one user. Session numbers are
// allocated sequentially per user, matching the chat_history audit rows.
type Session struct {
	UserID int64
	Num    int
	store  *Store
}

// NewSession allocates the next session number for the user and persists it.
func NewSession(ctx context.Context, store *Store, userID int64) (*Session, error) {
	latest, err := store.LatestSessionNumber(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest session number: %w", err)
	}
	num := latest + 1
	if err := store.CreateSession(ctx, userID, num); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &Session{UserID: userID, Num: num, store: store}, nil
}

// ResumeSession loads an existing session.
func ResumeSession(ctx context.Context, store *Store, userID int64, num int) (*Session, error) {
	exists, err := store.SessionExists(ctx, userID, num)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("session %d/%d not found", userID, num)
	}
	return &Session{UserID: userID, Num: num, store: store}, nil
}

// Key is the session's identifier in locks, events, and metrics.
func (s *Session) Key() string {
	return memory.SessionKey(s.UserID, s.Num)
}

// RecentHistory returns the last few audited interactions for display when
// resuming.
func (s *Session) RecentHistory(ctx context.Context, limit int) ([]memory.Interaction, error) {
	return s.store.RecentHistory(ctx, s.UserID, s.Num, limit)
}

// Touch updates the session's updated_at timestamp.
func (s *Session) Touch(ctx context.Context) error {
	return s.store.TouchSession(ctx, s.UserID, s.Num)
}
