package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/logging"
	"github.com/njarm23/ClaudeMemories/internal/server/jobs"
	"github.com/njarm23/ClaudeMemories/internal/server/llm"
	"github.com/njarm23/ClaudeMemories/internal/server/models"
	"github.com/njarm23/ClaudeMemories/internal/server/repositories/repomanager"
)

const (
	waterCoolerMinGossip    = 3
	waterCoolerContext      = 20
	waterCoolerTemperature  = 0.9
	waterCoolerMaxTokens    = 500
	waterCoolerEvent        = "water_cooler"
	waterCoolerInstructions = "Generate a water cooler conversation."
)

// WaterCooler has the worker personas banter about recent gossip.
type WaterCooler struct {
	rm     repomanager.RepositoryManager
	gen    llm.Generator
	gossip *GossipService
	model  string
	log    logging.Logger
	now    func() time.Time
}

func NewWaterCooler(rm repomanager.RepositoryManager, gen llm.Generator, gossip *GossipService, log logging.Logger, model string) *WaterCooler {
	return &WaterCooler{
		rm:     rm,
		gen:    gen,
		gossip: gossip,
		model:  model,
		log:    log.With("module", "water_cooler"),
		now:    time.Now,
	}
}

// Chat posts a short exchange and returns how many lines were stored.
func (w *WaterCooler) Chat(ctx context.Context) (int, error) {
	conn := w.rm.Transactor().Conn()
	recent, err := w.rm.Gossip(conn).Recent(ctx, waterCoolerContext)
	if err != nil {
		return 0, err
	}
	if len(recent) < waterCoolerMinGossip {
		return 0, nil
	}
	slices.Reverse(recent)

	stats, err := w.rm.Conversations(conn).Stats(ctx, w.now().Add(-24*time.Hour))
	if err != nil {
		return 0, err
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return 0, err
	}

	lines := make([]string, 0, len(recent))
	for _, g := range recent {
		lines = append(lines, fmt.Sprintf("%s %s: %s", g.WorkerEmoji, g.WorkerName, g.Message))
	}

	text, err := w.gen.Generate(ctx, llm.Request{
		Model:       w.model,
		System:      fmt.Sprintf(waterCoolerPrompt, strings.Join(lines, "\n"), statsJSON),
		Turns:       []llm.Turn{{Role: models.RoleUser, Text: waterCoolerInstructions}},
		Temperature: waterCoolerTemperature,
		MaxTokens:   waterCoolerMaxTokens,
	})
	if err != nil {
		return 0, fmt.Errorf("water cooler: %w", err)
	}

	var exchange []struct {
		Persona string `json:"persona"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(stripFences(text)), &exchange); err != nil {
		w.log.Warn(ctx, "unparseable water cooler chat", "response", clip(text, 200))
		return 0, nil
	}

	posted := 0
	for _, line := range exchange {
		if _, ok := models.Personas[line.Persona]; !ok || line.Message == "" {
			w.log.Debug(ctx, "dropping water cooler line", "persona", line.Persona)
			continue
		}
		if err := w.gossip.Post(ctx, jobs.Gossip{Persona: line.Persona, Message: line.Message, EventType: waterCoolerEvent}); err != nil {
			return posted, err
		}
		posted++
	}
	return posted, nil
}
