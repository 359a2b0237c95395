package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// RecordInteraction saves an interaction record
func (s *Store) RecordInteraction(ctx context.Context, interaction *storage.Interaction) error {
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}

	var finishReason, errorType, errorMessage sql.NullString
	if interaction.FinishReason != "" {
		finishReason = sql.NullString{String: interaction.FinishReason, Valid: true}
	}
	if interaction.ErrorType != "" {
		errorType = sql.NullString{String: interaction.ErrorType, Valid: true}
	}
	if interaction.ErrorMessage != "" {
		errorMessage = sql.NullString{String: interaction.ErrorMessage, Valid: true}
	}

	query := `INSERT INTO interactions (
		id, request_id, model, message_count, streaming, rag_enabled, rag_context_length,
		finish_reason, status, error_type, error_message, duration_ns, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		interaction.ID, interaction.RequestID, interaction.Model, interaction.MessageCount,
		boolToInt(interaction.Streaming), boolToInt(interaction.RagEnabled), interaction.RagContextLength,
		finishReason, interaction.Status, errorType, errorMessage,
		int64(interaction.Duration), interaction.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save interaction: %w", err)
	}

	return nil
}

const interactionColumns = `id, request_id, model, message_count, streaming, rag_enabled, rag_context_length,
		finish_reason, status, error_type, error_message, duration_ns, created_at`

// GetInteraction retrieves an interaction by ID
func (s *Store) GetInteraction(ctx context.Context, id string) (*storage.Interaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id)

	interaction, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("interaction %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interaction: %w", err)
	}
	return interaction, nil
}

// ListInteractions returns interactions newest first.
func (s *Store) ListInteractions(ctx context.Context, opts storage.InteractionListOptions) ([]*storage.Interaction, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []*storage.Interaction
	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		interactions = append(interactions, interaction)
	}

	return interactions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (*storage.Interaction, error) {
	var in storage.Interaction
	var requestID, finishReason, errorType, errorMessage sql.NullString
	var streaming, ragEnabled int
	var duration sql.NullInt64

	if err := row.Scan(&in.ID, &requestID, &in.Model, &in.MessageCount, &streaming, &ragEnabled,
		&in.RagContextLength, &finishReason, &in.Status, &errorType, &errorMessage,
		&duration, &in.CreatedAt); err != nil {
		return nil, err
	}

	in.RequestID = requestID.String
	in.Streaming = streaming != 0
	in.RagEnabled = ragEnabled != 0
	in.FinishReason = finishReason.String
	in.ErrorType = errorType.String
	in.ErrorMessage = errorMessage.String
	in.Duration = time.Duration(duration.Int64)
	return &in, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
