package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/topmix/internal/models"
	"github.com/desertthunder/topmix/internal/shared"
)

// GenerationRepository implements [models.Repository] for [models.Generation] persistence.
type GenerationRepository struct {
	db *sql.DB
}

// NewGenerationRepository creates a new [GenerationRepository] with the given database connection
func NewGenerationRepository(db *sql.DB) *GenerationRepository {
	return &GenerationRepository{db: db}
}

const generationColumns = `id, sequence, user_id, playlist_id, name, track_count, status, error, created_at, updated_at, deleted_at`

// Create inserts a new generation record with generated ID and sequence
func (r *GenerationRepository) Create(ctx context.Context, g *models.Generation) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(ctx, r.db, "generations")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	g.SetID(shared.GenerateID())
	g.SetSequence(sequence)

	query := `
		INSERT INTO generations (id, sequence, user_id, playlist_id, name, track_count, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		g.ID(), g.Sequence(), g.UserID(), g.PlaylistID(), g.Name(), g.TrackCount(),
		string(g.Status()), g.Failure(), g.CreatedAt(), g.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}

	return nil
}

// Get retrieves a generation by ID, excluding soft-deleted records
func (r *GenerationRepository) Get(ctx context.Context, id string) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = ? AND deleted_at IS NULL`

	g, err := scanGeneration(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: generation %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query generation: %w", err)
	}
	return g, nil
}

// Update writes the outcome fields of an existing generation
func (r *GenerationRepository) Update(ctx context.Context, g *models.Generation) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	g.SetUpdatedAt(now)

	query := `
		UPDATE generations
		SET playlist_id = ?, name = ?, track_count = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		g.PlaylistID(), g.Name(), g.TrackCount(), string(g.Status()), g.Failure(), now, g.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update generation: %w", err)
	}

	return expectAffected(result, g.ID())
}

// Delete soft-deletes a generation by ID
func (r *GenerationRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE generations SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete generation: %w", err)
	}

	return expectAffected(result, id)
}

// List retrieves generations matching the given criteria, newest first, excluding soft-deleted records.
//
// Supported criteria: "user_id" (string), "status" ([models.GenerationStatus] or string), "limit" (int).
func (r *GenerationRepository) List(ctx context.Context, criteria map[string]any) ([]*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE deleted_at IS NULL`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	switch status := criteria["status"].(type) {
	case models.GenerationStatus:
		query += " AND status = ?"
		args = append(args, string(status))
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}
	defer rows.Close()

	var generations []*models.Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		generations = append(generations, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return generations, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (*models.Generation, error) {
	var (
		id, userID, playlistID, name, status, errMsg string
		sequence, trackCount                         int
		createdAt, updatedAt                         time.Time
		deletedAt                                    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &userID, &playlistID, &name, &trackCount, &status, &errMsg, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	g := models.NewGeneration(sequence, userID, name)
	g.SetID(id)
	g.SetPlaylistID(playlistID)
	g.SetTrackCount(trackCount)
	g.SetStatus(models.GenerationStatus(status))
	g.SetFailure(errMsg)
	g.SetCreatedAt(createdAt)
	g.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		g.SetDeletedAt(&deletedAt.Time)
	}
	return g, nil
}

func expectAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: generation %s not found or already deleted", shared.ErrNotFound, id)
	}
	return nil
}
