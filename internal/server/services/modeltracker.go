package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/common"
	"github.com/njarm23/ClaudeMemories/internal/dbx"
	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

const (
	modelChangesKept  = 20
	modelChangesShown = 5
	unknownModel      = "unknown"
)

var dateSuffix = regexp.MustCompile(`^(.+?)-\d{4}-?\d{2}-?\d{2}$`)

// ModelProvider guesses the vendor from a model id.
func ModelProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"), strings.HasPrefix(m, "chatgpt"):
		return "openai"
	case strings.HasPrefix(m, "grok"):
		return "xai"
	case strings.HasPrefix(m, "gemini"):
		return "google"
	case strings.HasPrefix(m, "mistral"), strings.HasPrefix(m, "codestral"):
		return "mistral"
	case strings.HasPrefix(m, "command"):
		return "cohere"
	case strings.HasPrefix(m, "llama"), strings.HasPrefix(m, "meta-llama"):
		return "meta"
	case strings.HasPrefix(m, "deepseek"):
		return "deepseek"
	}
	return unknownModel
}

// ModelFamily shortens a model id: Claude models map to opus, sonnet or
// haiku; others lose a trailing date.
func ModelFamily(model string) string {
	m := strings.ToLower(model)
	for _, f := range []string{"opus", "sonnet", "haiku"} {
		if strings.Contains(m, f) {
			return f
		}
	}
	if sub := dateSuffix.FindStringSubmatch(m); sub != nil {
		return sub[1]
	}
	if model == "" {
		return unknownModel
	}
	return model
}

// ModelTracker records which model actually answered each stream.
type ModelTracker struct {
	rm  repomanager.RepositoryManager
	log logging.Logger
	now func() time.Time
}

func NewModelTracker(rm repomanager.RepositoryManager, log logging.Logger) *ModelTracker {
	return &ModelTracker{rm: rm, log: log.With("module", "model_tracker"), now: time.Now}
}

// Record notes an observation, bumps its family counter and logs a change
// when the model differs from the previous one.
func (t *ModelTracker) Record(ctx context.Context, model string) error {
	if model == "" {
		model = unknownModel
	}
	obs := models.ModelObservation{
		Model:    model,
		Family:   ModelFamily(model),
		Provider: ModelProvider(model),
		SeenAt:   t.now().UTC(),
	}
	return t.rm.Transactor().InTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := t.rm.ModelStats(tx)
		prev, err := repo.Current(ctx)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if err := repo.SetCurrent(ctx, obs); err != nil {
			return err
		}
		if err := repo.IncrementFamily(ctx, obs); err != nil {
			return err
		}
		if prev == nil || prev.Model == model {
			return nil
		}
		t.log.Info(ctx, "model changed", "from", prev.Model, "to", model)
		return repo.AddChange(ctx, models.ModelChange{
			From:         prev.Model,
			FromFamily:   ModelFamily(prev.Model),
			FromProvider: ModelProvider(prev.Model),
			To:           model,
			ToFamily:     obs.Family,
			ToProvider:   obs.Provider,
			ChangedAt:    obs.SeenAt,
		}, modelChangesKept)
	})
}

// Status returns the current model, per family counts and recent changes.
func (t *ModelTracker) Status(ctx context.Context) (*models.ModelStatus, error) {
	repo := t.rm.ModelStats(t.rm.Transactor().Conn())
	st := &models.ModelStatus{Counts: []models.FamilyCount{}, Changes: []models.ModelChange{}}

	cur, err := repo.Current(ctx)
	switch {
	case err == nil:
		st.Current = cur
	case !errors.Is(err, common.ErrorNotFound):
		return nil, err
	}
	counts, err := repo.Counts(ctx)
	if err != nil {
		return nil, err
	}
	if counts != nil {
		st.Counts = counts
	}
	changes, err := repo.Changes(ctx, modelChangesShown)
	if err != nil {
		return nil, err
	}
	if changes != nil {
		st.Changes = changes
	}
	return st, nil
}
