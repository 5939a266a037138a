package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/flemzord/tgmcp/internal/provider"
)

// History persists chat history keyed by chat. Safe for concurrent use.
type History struct {
	db *sql.DB
}

// Append adds messages to the chat's history in a single transaction.
func (h *History) Append(ctx context.Context, key string, msgs ...provider.LLMMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range msgs {
		toolCallsJSON := []byte("[]")
		if len(msg.ToolCalls) > 0 {
			toolCallsJSON, err = json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("sqlite: marshal tool_calls: %w", err)
			}
		}

		isError := 0
		if msg.IsError {
			isError = 1
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (chat_key, seq, role, content, name, tool_id, tool_calls, is_error)
			VALUES (?, COALESCE((SELECT MAX(seq) FROM messages WHERE chat_key = ?), 0) + 1,
			        ?, ?, ?, ?, ?, ?)`,
			key, key,
			string(msg.Role), msg.Content, msg.Name, msg.ToolID, string(toolCallsJSON), isError,
		)
		if err != nil {
			return fmt.Errorf("sqlite: append message: %w", err)
		}
	}

	return tx.Commit()
}

// Load returns up to limit of the chat's most recent messages in
// chronological order. A non-positive limit loads everything.
func (h *History) Load(ctx context.Context, key string, limit int) ([]provider.LLMMessage, error) {
	query := `
		SELECT role, content, name, tool_id, tool_calls, is_error
		FROM messages
		WHERE chat_key = ?
		ORDER BY seq DESC`
	args := []any{key}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []provider.LLMMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load history rows: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}

// Clear removes all messages of a chat.
func (h *History) Clear(ctx context.Context, key string) error {
	if _, err := h.db.ExecContext(ctx, "DELETE FROM messages WHERE chat_key = ?", key); err != nil {
		return fmt.Errorf("sqlite: clear history: %w", err)
	}
	return nil
}

// Len returns the number of messages stored for a chat.
func (h *History) Len(ctx context.Context, key string) (int, error) {
	var count int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE chat_key = ?", key,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count messages: %w", err)
	}
	return count, nil
}

// Trim keeps only the newest keep messages of every chat and returns the
// number of rows removed.
func (h *History) Trim(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := h.db.ExecContext(ctx, `
		DELETE FROM messages
		WHERE seq <= (
			SELECT MAX(m.seq) FROM messages m WHERE m.chat_key = messages.chat_key
		) - ?`, keep)
	if err != nil {
		return 0, fmt.Errorf("sqlite: trim history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: trim rows affected: %w", err)
	}
	return n, nil
}

// Vacuum reclaims space freed by Trim and Clear.
func (h *History) Vacuum(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("sqlite: vacuum: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (provider.LLMMessage, error) {
	var (
		msg           provider.LLMMessage
		role          string
		toolCallsJSON string
		isError       int
	)

	if err := s.Scan(&role, &msg.Content, &msg.Name, &msg.ToolID, &toolCallsJSON, &isError); err != nil {
		return msg, fmt.Errorf("sqlite: scan message: %w", err)
	}

	msg.Role = provider.MessageRole(role)
	msg.IsError = isError != 0

	if toolCallsJSON != "" && toolCallsJSON != "[]" {
		if err := json.Unmarshal([]byte(toolCallsJSON), &msg.ToolCalls); err != nil {
			return msg, fmt.Errorf("sqlite: unmarshal tool_calls: %w", err)
		}
	}

	return msg, nil
}
