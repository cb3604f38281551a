package triage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/triage/triage/internal/platform/db"
)

type chatRepoPG struct {
	pool *pgxpool.Pool
}

func NewChatRepo(pool *pgxpool.Pool) ChatRepository {
	return &chatRepoPG{pool: pool}
}

type messageRepoPG struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) MessageRepository {
	return &messageRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func conn(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

const chatCols = `id, user_id, title, stage, summary, created_at, last_activity_at`

func (r *chatRepoPG) Upsert(ctx context.Context, chat *Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO chat (id, user_id, title, stage, summary)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			stage = EXCLUDED.stage,
			summary = EXCLUDED.summary,
			last_activity_at = NOW()`,
		chat.ID, chat.UserID, chat.Title, chat.Stage, chat.Summary,
	)
	return err
}

func (r *chatRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Chat, error) {
	return scanChat(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+chatCols+` FROM chat WHERE id = $1`, id))
}

func (r *chatRepoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Chat, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM chat WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+chatCols+` FROM chat WHERE user_id = $1 ORDER BY last_activity_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Stage, &c.Summary, &c.CreatedAt, &c.LastActivityAt); err != nil {
			return nil, 0, err
		}
		chats = append(chats, &c)
	}
	return chats, total, rows.Err()
}

func scanChat(row pgx.Row) (*Chat, error) {
	var c Chat
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.Stage, &c.Summary, &c.CreatedAt, &c.LastActivityAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const msgCols = `id, chat_id, sender, body, metadata, created_at`

func (r *messageRepoPG) Append(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO message (id, chat_id, sender, body, metadata)
		VALUES ($1,$2,$3,$4,$5)`,
		msg.ID, msg.ChatID, msg.Sender, msg.Body, msg.Metadata,
	)
	return err
}

func (r *messageRepoPG) ListByChat(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM message WHERE chat_id = $1`, chatID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx,
		`SELECT `+msgCols+` FROM message WHERE chat_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Body, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, total, rows.Err()
}
