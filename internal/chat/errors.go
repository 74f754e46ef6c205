package chat

import (
	"errors"
	"fmt"

	"marketplace-chat/internal/auth"
)

var (
	ErrUnauthenticated  = auth.ErrUnauthenticated
	ErrAccessDenied     = errors.New("access denied")
	ErrValidation       = errors.New("invalid message")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrNotFound         = errors.New("not found")
	ErrStore            = errors.New("store failure")
)

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
