package triage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a chat or message lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Chat is one persisted triage conversation.
type Chat struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"userId"`
	Title          string    `json:"title"`
	Stage          Stage     `json:"stage"`
	Summary        string    `json:"summary,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
}

// Sender values for persisted messages.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Message is one persisted turn half. Metadata carries the context projection
// captured when the message was written, for history screens and debugging.
type Message struct {
	ID        uuid.UUID          `json:"id"`
	ChatID    uuid.UUID          `json:"chatId"`
	Sender    string             `json:"sender"`
	Body      string             `json:"body"`
	Metadata  *ContextProjection `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

type ChatRepository interface {
	Upsert(ctx context.Context, chat *Chat) error
	GetByID(ctx context.Context, id uuid.UUID) (*Chat, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Chat, int, error)
}

type MessageRepository interface {
	Append(ctx context.Context, msg *Message) error
	ListByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*Message, int, error)
}
