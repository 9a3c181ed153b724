package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xhad/shopmate/internal/models"
)

// PostgresStore keeps turns as rows. Each append is a single INSERT, so
// concurrent appends to one conversation cannot lose updates.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresStore(ctx context.Context, connString, table string) (*PostgresStore, error) {
	if table == "" {
		table = "chat_turns"
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{pool: pool, table: table}
	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initialize(ctx context.Context) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_conversation_idx ON %s (conversation_id, id)`,
		s.table, s.table)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, conversationID, prompt, response string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (conversation_id, prompt, response) VALUES ($1, $2, $3)`, s.table)
	if _, err := s.pool.Exec(ctx, stmt, conversationID, prompt, response); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, conversationID string) ([]models.Turn, error) {
	if err := ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT prompt, response FROM %s WHERE conversation_id = $1 ORDER BY id`, s.table)
	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.Prompt, &t.Response); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) Clear(ctx context.Context, conversationID string) error {
	if err := ValidateConversationID(conversationID); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE conversation_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, stmt, conversationID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
