// Package store provides pgx-backed durable repositories for the Document
// descriptor and for Conversation/Message chat history. It implements the
// generic repo.Repository[T,ID] interface with SQL.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightloom-labs/docrag/engine/domain"
	"github.com/brightloom-labs/docrag/pkg/repo"
)

// Connect opens a pgxpool against connStr, the way manifold's sefii.Connect
// opens a single pgx.Conn; a pool is used here because both the request
// domain and the ingestion worker domain hold long-lived handles.
func Connect(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// DocumentRepo is the pgx-backed Repository[domain.Document, int64].
type DocumentRepo struct {
	pool *pgxpool.Pool
}

var _ repo.Repository[domain.Document, int64] = (*DocumentRepo)(nil)

func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

func (r *DocumentRepo) Get(ctx context.Context, id int64) (domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, display_name, content_hash, group_id, object_key, local_path, status,
		       error_message, chunk_count, task_handle, created_at, updated_at
		FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

func (r *DocumentRepo) List(ctx context.Context, opts repo.ListOpts) ([]domain.Document, error) {
	groupID, _ := opts.Filter["group_id"].(int64)
	status, _ := opts.Filter["status"].(string)

	query := `SELECT id, display_name, content_hash, group_id, object_key, local_path, status,
	                 error_message, chunk_count, task_handle, created_at, updated_at
	          FROM documents WHERE ($1::bigint IS NULL OR group_id = $1)
	                           AND ($2::text IS NULL OR status = $2)
	          ORDER BY created_at DESC OFFSET $3 LIMIT $4`
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	var groupArg any
	if groupID != 0 {
		groupArg = groupID
	}
	var statusArg any
	if status != "" {
		statusArg = status
	}
	rows, err := r.pool.Query(ctx, query, groupArg, statusArg, opts.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Create(ctx context.Context, d domain.Document) (domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO documents (display_name, content_hash, group_id, object_key, local_path, status, task_handle)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, display_name, content_hash, group_id, object_key, local_path, status,
		          error_message, chunk_count, task_handle, created_at, updated_at`,
		d.DisplayName, d.ContentHash, d.GroupID, d.ObjectKey, d.LocalPath, domain.StatusPending, d.TaskHandle)
	created, err := scanDocument(row)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return domain.Document{}, domain.New(domain.KindInputInvalid, domain.ErrDuplicateUpload)
		}
		return domain.Document{}, err
	}
	return created, nil
}

func (r *DocumentRepo) Update(ctx context.Context, d domain.Document) (domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE documents SET status = $2, error_message = $3, chunk_count = $4,
		       task_handle = $5, updated_at = now()
		WHERE id = $1
		RETURNING id, display_name, content_hash, group_id, object_key, local_path, status,
		          error_message, chunk_count, task_handle, created_at, updated_at`,
		d.ID, d.Status, d.ErrorMessage, d.ChunkCount, d.TaskHandle)
	return scanDocument(row)
}

func (r *DocumentRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.New(domain.KindDataConsistency, domain.ErrDocumentMissing)
	}
	return nil
}

// rowScanner abstracts pgx.Row and pgx.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (domain.Document, error) {
	var d domain.Document
	var errMsg, taskHandle, localPath *string
	err := row.Scan(&d.ID, &d.DisplayName, &d.ContentHash, &d.GroupID, &d.ObjectKey, &localPath,
		&d.Status, &errMsg, &d.ChunkCount, &taskHandle, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, domain.New(domain.KindDataConsistency, domain.ErrDocumentMissing)
		}
		return domain.Document{}, fmt.Errorf("scan document: %w", err)
	}
	if errMsg != nil {
		d.ErrorMessage = *errMsg
	}
	if taskHandle != nil {
		d.TaskHandle = *taskHandle
	}
	if localPath != nil {
		d.LocalPath = *localPath
	}
	return d, nil
}

// ConversationStore is the durable conversation/message store. Conversations
// own their messages; deleting a conversation cascades (FK ON DELETE CASCADE
// in the schema).
type ConversationStore struct {
	pool *pgxpool.Pool
}

func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

func (s *ConversationStore) CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (user_id, title, group_id) VALUES ($1, $2, $3)
		RETURNING id, user_id, title, group_id, created_at, updated_at`,
		c.UserID, c.Title, c.GroupID)
	return scanConversation(row)
}

func (s *ConversationStore) AppendMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, role, content, sources_json, intent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, conversation_id, role, content, sources_json, intent, created_at`,
		m.ConversationID, m.Role, m.Content, m.SourcesJSON, m.Intent)
	msg, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, err
	}
	if _, err := s.pool.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, m.ConversationID); err != nil {
		return msg, fmt.Errorf("touch conversation: %w", err)
	}
	return msg, nil
}

// RecentMessages returns the most recent n messages for a conversation, in
// chronological order (oldest first) — the durable-store fallback for the
// recency cache (spec §4.11).
func (s *ConversationStore) RecentMessages(ctx context.Context, conversationID int64, n int) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, sources_json, intent, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at DESC LIMIT $2`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *ConversationStore) DeleteConversation(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.New(domain.KindDataConsistency, errors.New("conversation missing"))
	}
	return nil
}

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	var groupID *int64
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &groupID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	c.GroupID = groupID
	return c, nil
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var m domain.Message
	var sourcesJSON, intent *string
	err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &sourcesJSON, &intent, &m.CreatedAt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("scan message: %w", err)
	}
	if sourcesJSON != nil {
		m.SourcesJSON = *sourcesJSON
	}
	if intent != nil {
		m.Intent = *intent
	}
	return m, nil
}

// Schema is the DDL applied at startup, mirroring the idempotent table
// creation style of manifold's ensureClickHouseTables for the vector/event
// stores — here for the relational side.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	display_name TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	group_id BIGINT NOT NULL,
	object_key TEXT NOT NULL DEFAULT '',
	local_path TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT,
	chunk_count INT NOT NULL DEFAULT 0,
	task_handle TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (content_hash, group_id)
);

CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	group_id BIGINT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_id BIGINT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	sources_json TEXT,
	intent TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the relational tables if they don't exist. Idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
