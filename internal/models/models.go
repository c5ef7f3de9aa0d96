package models

import (
	"context"
	"fmt"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(ctx context.Context, model T) error                      // Create inserts a new model into the database
	Get(ctx context.Context, id string) (T, error)                  // Get retrieves a model by its ID
	Update(ctx context.Context, model T) error                      // Update modifies an existing model in the database
	Delete(ctx context.Context, id string) error                    // Delete removes a model from the database by its ID
	List(ctx context.Context, criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// GenerationStatus is the outcome of one playlist generation run.
type GenerationStatus string

const (
	GenerationPending  GenerationStatus = "pending"
	GenerationComplete GenerationStatus = "complete"
	// GenerationPartial means the playlist exists but adding tracks failed.
	GenerationPartial GenerationStatus = "partial"
	GenerationFailed  GenerationStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s GenerationStatus) Valid() bool {
	switch s {
	case GenerationPending, GenerationComplete, GenerationPartial, GenerationFailed:
		return true
	}
	return false
}

// Generation records a single "top tracks to playlist" run for a user.
type Generation struct {
	id         string
	sequence   int
	userID     string
	playlistID string
	name       string
	trackCount int
	status     GenerationStatus
	err        string
	createdAt  time.Time
	updatedAt  time.Time
	deletedAt  *time.Time
}

// NewGeneration creates a pending [Generation] for userID targeting a playlist called name.
func NewGeneration(sequence int, userID, name string) *Generation {
	now := time.Now().UTC()
	return &Generation{
		sequence:  sequence,
		userID:    userID,
		name:      name,
		status:    GenerationPending,
		createdAt: now,
		updatedAt: now,
	}
}

func (g *Generation) ID() string { return g.id }
func (g *Generation) Sequence() int { return g.sequence }
func (g *Generation) UserID() string { return g.userID }
func (g *Generation) PlaylistID() string { return g.playlistID }
func (g *Generation) Name() string { return g.name }
func (g *Generation) TrackCount() int { return g.trackCount }
func (g *Generation) Status() GenerationStatus { return g.status }
func (g *Generation) Failure() string { return g.err }
func (g *Generation) CreatedAt() time.Time { return g.createdAt }
func (g *Generation) UpdatedAt() time.Time { return g.updatedAt }
func (g *Generation) DeletedAt() *time.Time { return g.deletedAt }

func (g *Generation) SetID(id string) { g.id = id }
func (g *Generation) SetSequence(sequence int) { g.sequence = sequence }
func (g *Generation) SetPlaylistID(id string) { g.playlistID = id }
func (g *Generation) SetTrackCount(n int) { g.trackCount = n }
func (g *Generation) SetCreatedAt(t time.Time) { g.createdAt = t }
func (g *Generation) SetUpdatedAt(t time.Time) { g.updatedAt = t }
func (g *Generation) SetDeletedAt(t *time.Time) { g.deletedAt = t }
func (g *Generation) SetStatus(s GenerationStatus) { g.status = s }
func (g *Generation) SetFailure(msg string) { g.err = msg }

// Complete marks the run as successful.
func (g *Generation) Complete(playlistID string, trackCount int) {
	g.playlistID = playlistID
	g.trackCount = trackCount
	g.status = GenerationComplete
	g.err = ""
}

// Fail marks the run as failed. A non-empty playlistID means the playlist was
// created before the failure and the run is recorded as partial.
func (g *Generation) Fail(playlistID string, err error) {
	g.playlistID = playlistID
	g.status = GenerationFailed
	if playlistID != "" {
		g.status = GenerationPartial
	}
	if err != nil {
		g.err = err.Error()
	}
}

// Validate checks required fields.
func (g *Generation) Validate() error {
	if g.userID == "" {
		return fmt.Errorf("user id is required")
	}
	if g.name == "" {
		return fmt.Errorf("playlist name is required")
	}
	if !g.status.Valid() {
		return fmt.Errorf("invalid status %q", g.status)
	}
	if g.trackCount < 0 {
		return fmt.Errorf("track count cannot be negative")
	}
	return nil
}
