package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/repos"
	"github.com/yungbote/eventscout-backend/internal/types"
	"github.com/yungbote/eventscout-backend/internal/utils"
)

// ClassificationService tags newly ingested events. The scheduler requests a
// run after every job completion; runs are coalesced by the caller.
type ClassificationService interface {
	Run(ctx context.Context) error
}

type classifyItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type classificationService struct {
	log        *logger.Logger
	ai         AIClient
	eventRepo  repos.EventRepo
	aiCallRepo repos.AICallLogRepo

	// promptBudget mirrors the per-call prompt limit; the batch builder
	// bisects recursively whenever a built prompt would exceed it.
	promptBudget int
}

func NewClassificationService(log *logger.Logger, ai AIClient, eventRepo repos.EventRepo, aiCallRepo repos.AICallLogRepo) ClassificationService {
	return &classificationService{
		log:          log.With("service", "ClassificationService"),
		ai:           ai,
		eventRepo:    eventRepo,
		aiCallRepo:   aiCallRepo,
		promptBudget: maxPromptChars,
	}
}

func (s *classificationService) Run(ctx context.Context) error {
	events, err := s.eventRepo.ListQueuedFuture(ctx, nil, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list queued events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	items := make([]classifyItem, 0, len(events))
	for _, e := range events {
		items = append(items, classifyItem{
			ID:          e.ID.String(),
			Name:        e.Name,
			Description: utils.TruncateRunes(e.Description, 2000),
		})
	}

	tagsByID := s.classifyBatch(ctx, items)

	done := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		if tags, ok := tagsByID[e.ID.String()]; ok && len(tags) > 0 {
			buf, err := json.Marshal(tags)
			if err == nil {
				if err := s.eventRepo.SetTags(ctx, nil, e.ID, datatypes.JSON(buf)); err != nil {
					s.log.Warn("Failed to store event tags", "event_id", e.ID, "error", err)
					continue
				}
			}
		}
		done = append(done, e.ID)
	}
	if err := s.eventRepo.SetClassificationStatus(ctx, nil, done, types.ClassificationStatusDone); err != nil {
		return fmt.Errorf("mark events classified: %w", err)
	}

	s.log.Info("Classification run finished", "events", len(events), "tagged", len(tagsByID))
	return nil
}

// classifyBatch classifies a batch in one AI call when the prompt fits the
// budget. Oversized batches split in half and the halves run concurrently;
// a single oversized item has its description cut until it fits.
func (s *classificationService) classifyBatch(ctx context.Context, items []classifyItem) map[string][]string {
	if len(items) == 0 {
		return map[string][]string{}
	}

	prompt := s.buildPrompt(items)
	if len(prompt) > s.promptBudget {
		if len(items) > 1 {
			mid := len(items) / 2
			var (
				mu     sync.Mutex
				merged = map[string][]string{}
			)
			g, gctx := errgroup.WithContext(ctx)
			for _, half := range [][]classifyItem{items[:mid], items[mid:]} {
				half := half
				g.Go(func() error {
					part := s.classifyBatch(gctx, half)
					mu.Lock()
					for id, tags := range part {
						merged[id] = tags
					}
					mu.Unlock()
					return nil
				})
			}
			_ = g.Wait()
			return merged
		}

		overhead := len(prompt) - len(items[0].Description)
		room := s.promptBudget - overhead
		if room < 0 {
			room = 0
		}
		items[0].Description = utils.TruncateRunes(items[0].Description, room)
		prompt = s.buildPrompt(items)
	}

	raw, err := s.ai.Complete(ctx, "You tag community events. Respond with JSON only.", prompt)
	s.recordCall(ctx, "event_classification", prompt, raw, err)
	if err != nil {
		s.log.Warn("Classification call failed", "items", len(items), "error", err)
		return map[string][]string{}
	}

	obj := utils.SafeParseJSONObject(raw)
	if obj == nil {
		s.log.Warn("Classification returned unparseable JSON", "items", len(items))
		return map[string][]string{}
	}
	rawEvents, ok := obj["events"].([]any)
	if !ok {
		return map[string][]string{}
	}

	out := map[string][]string{}
	for _, re := range rawEvents {
		m, ok := re.(map[string]any)
		if !ok {
			continue
		}
		id := asString(m["id"])
		if id == "" {
			continue
		}
		rawTags, _ := m["tags"].([]any)
		tags := make([]string, 0, len(rawTags))
		for _, t := range rawTags {
			if tag := asString(t); tag != "" {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			out[id] = tags
		}
	}
	return out
}

func (s *classificationService) buildPrompt(items []classifyItem) string {
	payload, _ := json.Marshal(items)
	var b strings.Builder
	b.WriteString(`For each event below, assign a short list of descriptive tags (themes, audience, vibe).
Respond with a single JSON object of the form {"events": [{"id": "...", "tags": ["..."]}]}, one entry per input event.

Events:
`)
	b.Write(payload)
	return b.String()
}

func (s *classificationService) recordCall(ctx context.Context, callType, prompt, response string, callErr error) {
	if s.aiCallRepo == nil {
		return
	}
	entry := &types.AICallLog{
		CallType: callType,
		Model:    s.ai.Model(),
		Prompt:   prompt,
		Response: response,
		Success:  callErr == nil,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if parsed := utils.SafeParseJSONObject(response); parsed != nil {
		if buf, err := json.Marshal(parsed); err == nil {
			entry.Parsed = datatypes.JSON(buf)
		}
	}
	if _, err := s.aiCallRepo.Create(ctx, nil, []*types.AICallLog{entry}); err != nil {
		s.log.Warn("Failed to persist AI call log", "call_type", callType, "error", err)
	}
}
