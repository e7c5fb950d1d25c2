package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediateca/vodrag/pkg/llm"
)

// sqlAgentSchema is the fixed schema description handed to the model. Kept
// in sync with the init migration by hand.
const sqlAgentSchema = `Tables:
1. videos (
    video_id TEXT,
    channel_id BIGINT,
    title TEXT,
    description TEXT,
    published_at TIMESTAMPTZ,
    duration INTEGER (seconds),
    audio_path TEXT,
    downloaded BOOLEAN,
    transcribed BOOLEAN,
    created_at TIMESTAMPTZ
)
2. channels (
    id BIGINT,
    name TEXT,
    url TEXT,
    created_at TIMESTAMPTZ
)
3. chat_sessions (
    id UUID,
    channel_id BIGINT,
    title TEXT,
    created_at TIMESTAMPTZ
)
4. chat_messages (
    id BIGINT,
    session_id UUID FK,
    role TEXT,
    content TEXT,
    created_at TIMESTAMPTZ
)`

const generateSQLPrompt = `You are a SQL expert.
Convert the user's question into a SQL query based on the schema below.

Rules:
- Return ONLY the raw SQL query. No markdown, no explanation.
- Use PostgreSQL syntax.
- Only SELECT statements allowed.

Schema:
%s

Question: %s
SQL:`

const summarizeSQLPrompt = `User Question: %s
Database Results: %s

Answer the user's question naturally based on the results above.
If it's a list, format it nicely.`

// maxSQLResultRows caps how many rows are fed back to the model.
const maxSQLResultRows = 50

// SQLAgentService answers catalog questions by generating one SELECT,
// executing it, and summarizing the rows. Execution problems are folded
// into the answer text so the chat stream never breaks on a bad query.
type SQLAgentService struct {
	pool *pgxpool.Pool
	llm  llm.Client
}

// NewSQLAgentService creates a new SQLAgentService.
func NewSQLAgentService(pool *pgxpool.Pool, llmClient llm.Client) *SQLAgentService {
	return &SQLAgentService{pool: pool, llm: llmClient}
}

// Answer runs the generate-execute-summarize loop for one question. The
// returned error covers model failures only; SQL-level problems come back
// as the answer string.
func (s *SQLAgentService) Answer(ctx context.Context, question string) (string, error) {
	query, err := s.generateSQL(ctx, question)
	if err != nil {
		return "", fmt.Errorf("failed to generate SQL: %w", err)
	}
	slog.Info("Generated SQL", "sql", query)

	if !isSelect(query) {
		return "I can only perform read operations (SELECT).", nil
	}

	records, err := s.execute(ctx, query)
	if err != nil {
		slog.Error("SQL execution failed", "error", err)
		return fmt.Sprintf("I tried to query the database, but an error occurred: %v", err), nil
	}
	if len(records) == 0 {
		return "The database query returned no results.", nil
	}

	return s.summarize(ctx, question, records)
}

func (s *SQLAgentService) generateSQL(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(generateSQLPrompt, sqlAgentSchema, question)
	response, err := s.llm.Generate(ctx, []llm.Message{llm.User(prompt)})
	if err != nil {
		return "", err
	}

	clean := strings.ReplaceAll(response, "```sql", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean), nil
}

func (s *SQLAgentService) execute(ctx context.Context, query string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var records []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(map[string]any, len(fields))
		for i, fd := range fields {
			record[fd.Name] = values[i]
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *SQLAgentService) summarize(ctx context.Context, question string, records []map[string]any) (string, error) {
	truncated := len(records) - maxSQLResultRows
	if truncated > 0 {
		records = records[:maxSQLResultRows]
	}

	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	dataStr := string(data)
	if truncated > 0 {
		dataStr += fmt.Sprintf("... (and %d more items)", truncated)
	}

	prompt := fmt.Sprintf(summarizeSQLPrompt, question, dataStr)
	answer, err := s.llm.Generate(ctx, []llm.Message{llm.User(prompt)})
	if err != nil {
		return "", fmt.Errorf("failed to summarize results: %w", err)
	}
	return answer, nil
}

// isSelect reports whether the first token of the query is SELECT.
func isSelect(query string) bool {
	fields := strings.Fields(query)
	return len(fields) > 0 && strings.EqualFold(fields[0], "SELECT")
}
