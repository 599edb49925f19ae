// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/webui-chat/internal/model"
)

// DefaultMaxConversations bounds the number of stored transcripts.
const DefaultMaxConversations = 200

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when no transcript matches an ID.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrAmbiguousID is returned when an ID prefix matches several transcripts.
	ErrAmbiguousID = errors.New("conversation id prefix is ambiguous")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

// =============================================================================
// STORE
// =============================================================================

// Store persists conversations in SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	// MaxConversations limits stored transcripts (0 = unlimited).
	// The least recently updated are removed first.
	MaxConversations int

	mu     sync.Mutex
	closed bool
}

// Open opens or creates the transcript database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{
		db:               db,
		path:             path,
		logger:           logger.With("component", "storage"),
		MaxConversations: DefaultMaxConversations,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(InitMetadata)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save writes conv, replacing any previous copy with the same ID.
// Streaming placeholders are transient and are not written; they only
// ever occur at the end of a conversation, so positions stay stable.
func (s *Store) Save(ctx context.Context, conv *model.Conversation) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if conv == nil || conv.ID == "" {
		return errors.New("conversation has no id")
	}

	title := conv.Title
	if title == "" {
		title = "New conversation"
	}
	updated := conv.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	created := conv.CreatedAt
	if created.IsZero() {
		created = updated
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			updated_at = excluded.updated_at`,
		conv.ID, title, conv.Model, created.UnixNano(), updated.UnixNano())
	if err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, position, id, role, content, timestamp,
			is_original, is_retry_prompt, original_index, is_error, status_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare messages: %w", err)
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		if msg == nil || msg.IsStreaming {
			continue
		}
		_, err := stmt.ExecContext(ctx,
			conv.ID, i, msg.ID, string(msg.Role), msg.Content, msg.Timestamp.UnixNano(),
			msg.IsOriginalUserMessage, msg.IsRetryPrompt, msg.OriginalMessageIndex,
			msg.IsError, msg.StatusCode)
		if err != nil {
			return fmt.Errorf("save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	s.logger.Debug("conversation saved", "id", conv.ID, "messages", len(conv.Messages))

	if s.MaxConversations > 0 {
		if err := s.Prune(ctx, s.MaxConversations); err != nil {
			s.logger.Warn("prune failed", "error", err)
		}
	}
	return nil
}

// Prune deletes the least recently updated conversations beyond keep.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id NOT IN (
			SELECT id FROM conversations ORDER BY updated_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("pruned old conversations", "count", n)
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id NOT IN (SELECT id FROM conversations)")
	return err
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Resolve expands a full ID or a unique ID prefix to a stored ID.
func (s *Store) Resolve(ctx context.Context, idOrPrefix string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return "", ErrConversationNotFound
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM conversations WHERE substr(id, 1, ?) = ? LIMIT 2",
		len(idOrPrefix), idOrPrefix)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		if id == idOrPrefix {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", ErrConversationNotFound
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %s", ErrAmbiguousID, idOrPrefix)
	}
}

// Load retrieves a conversation by ID or unique ID prefix.
func (s *Store) Load(ctx context.Context, idOrPrefix string) (*model.Conversation, error) {
	id, err := s.Resolve(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}

	conv := &model.Conversation{ID: id}
	var created, updated int64
	err = s.db.QueryRowContext(ctx,
		"SELECT title, model, created_at, updated_at FROM conversations WHERE id = ?", id).
		Scan(&conv.Title, &conv.Model, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, timestamp, is_original, is_retry_prompt,
			original_index, is_error, status_code
		FROM messages WHERE conversation_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	conv.Messages = make([]*model.Message, 0)
	for rows.Next() {
		var (
			msg  model.Message
			role string
			ts   int64
		)
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &ts, &msg.IsOriginalUserMessage,
			&msg.IsRetryPrompt, &msg.OriginalMessageIndex, &msg.IsError, &msg.StatusCode); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.Timestamp = time.Unix(0, ts)
		conv.Messages = append(conv.Messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return conv, nil
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

const listQuery = `
	SELECT c.id, c.title, c.model, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
	FROM conversations c`

// List returns up to limit conversations, most recent first (limit <= 0 = all).
func (s *Store) List(ctx context.Context, limit int) ([]model.ConversationMeta, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	return s.queryMetas(ctx, listQuery+" ORDER BY c.updated_at DESC LIMIT ?", limit)
}

// Search returns conversations whose title or any message contains query
// (case-insensitive), most recent first.
func (s *Store) Search(ctx context.Context, query string) ([]model.ConversationMeta, error) {
	if strings.TrimSpace(query) == "" {
		return s.List(ctx, 0)
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryMetas(ctx, listQuery+`
		WHERE lower(c.title) LIKE ? ESCAPE '\'
		OR EXISTS (SELECT 1 FROM messages m WHERE m.conversation_id = c.id
			AND lower(m.content) LIKE ? ESCAPE '\')
		ORDER BY c.updated_at DESC`, pattern, pattern)
}

func (s *Store) queryMetas(ctx context.Context, query string, args ...any) ([]model.ConversationMeta, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metas := make([]model.ConversationMeta, 0)
	for rows.Next() {
		var (
			meta    model.ConversationMeta
			updated int64
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &updated, &meta.MessageCount); err != nil {
			return nil, err
		}
		meta.UpdatedAt = time.Unix(0, updated)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation by ID or unique ID prefix.
func (s *Store) Delete(ctx context.Context, idOrPrefix string) error {
	id, err := s.Resolve(ctx, idOrPrefix)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return tx.Commit()
}
