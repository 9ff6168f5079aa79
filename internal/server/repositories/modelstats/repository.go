package modelstats

import (
	"context"

	"github.com/njarm23/ClaudeMemories/internal/server/models"
)

type Repository interface {
	// Current returns the last observed model or ErrorNotFound.
	Current(ctx context.Context) (*models.ModelObservation, error)
	SetCurrent(ctx context.Context, o models.ModelObservation) error
	IncrementFamily(ctx context.Context, o models.ModelObservation) error
	// AddChange records a switch and trims the log to the newest keep rows.
	AddChange(ctx context.Context, c models.ModelChange, keep int) error
	Counts(ctx context.Context) ([]models.FamilyCount, error)
	Changes(ctx context.Context, limit int) ([]models.ModelChange, error)
}
