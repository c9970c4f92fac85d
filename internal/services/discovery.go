package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/normalize"
	"github.com/yungbote/eventscout-backend/internal/repos"
	"github.com/yungbote/eventscout-backend/internal/types"
	"github.com/yungbote/eventscout-backend/internal/utils"
)

// maxPromptChars bounds the page text handed to a single AI call. Oversized
// pages are truncated before prompting; only the batch classifier bisects.
const maxPromptChars = 120000

const defaultMaxDiscoveredEvents = 500

// DiscoveryRequest drives one discovery/extraction pass over a page.
type DiscoveryRequest struct {
	URL                 string
	TaskID              *uuid.UUID
	Source              string
	MaxEvents           int
	ExtractFromListPage bool
	Now                 time.Time
}

// DiscoveryService classifies a page as a single event or a list of events
// and extracts normalized candidates from it.
type DiscoveryService interface {
	DiscoverAndExtract(ctx context.Context, req DiscoveryRequest) ([]types.NormalizedEventInput, error)
}

type discoveryService struct {
	log        *logger.Logger
	ai         AIClient
	renderer   PageRenderer
	aiCallRepo repos.AICallLogRepo
	linkSem    *semaphore.Weighted
}

func NewDiscoveryService(log *logger.Logger, ai AIClient, renderer PageRenderer, aiCallRepo repos.AICallLogRepo) DiscoveryService {
	serviceLog := log.With("service", "DiscoveryService")
	linkConcurrency := utils.GetEnvAsInt("SCRAPE_URL_CONCURRENCY", 8, serviceLog)
	if linkConcurrency < 1 {
		linkConcurrency = 1
	}
	return &discoveryService{
		log:        serviceLog,
		ai:         ai,
		renderer:   renderer,
		aiCallRepo: aiCallRepo,
		linkSem:    semaphore.NewWeighted(int64(linkConcurrency)),
	}
}

type pageClassification struct {
	Type  string                 `json:"type"`
	Items []types.DiscoveredLink `json:"items"`
}

func (s *discoveryService) DiscoverAndExtract(ctx context.Context, req DiscoveryRequest) ([]types.NormalizedEventInput, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	rawHTML, err := s.renderer.Render(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", req.URL, err)
	}
	page := utils.TruncateRunes(utils.CleanHTML(rawHTML), maxPromptChars)

	if req.ExtractFromListPage {
		events := s.extractListPage(ctx, req, page)
		if len(events) > 0 {
			return filterFuture(events, now), nil
		}
	}

	classification := s.classifyPage(ctx, req, page)

	if classification.Type == "single" {
		event, ok := s.extractSingle(ctx, req.TaskID, req.URL, page)
		if !ok {
			return []types.NormalizedEventInput{}, nil
		}
		s.stampSource(&event, req)
		return filterFuture([]types.NormalizedEventInput{event}, now), nil
	}

	links := s.resolveLinks(req.URL, classification.Items)

	maxEvents := req.MaxEvents
	if maxEvents <= 0 || maxEvents > defaultMaxDiscoveredEvents {
		maxEvents = defaultMaxDiscoveredEvents
	}
	links = filterFutureLinks(links, now)
	if len(links) > maxEvents {
		links = links[:maxEvents]
	}

	events := s.extractLinks(ctx, req, links)
	return filterFuture(events, now), nil
}

// extractLinks fans one single-event extraction out per link. Individual
// failures are logged and skipped; they never abort the batch.
func (s *discoveryService) extractLinks(ctx context.Context, req DiscoveryRequest, links []types.DiscoveredLink) []types.NormalizedEventInput {
	var (
		mu  sync.Mutex
		out []types.NormalizedEventInput
		wg  sync.WaitGroup
	)
	for _, link := range links {
		link := link
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.linkSem.Acquire(ctx, 1); err != nil {
				return
			}
			defer s.linkSem.Release(1)

			rawHTML, err := s.renderer.Render(ctx, link.URL)
			if err != nil {
				s.log.Warn("Discovered link render failed", "url", link.URL, "error", err)
				return
			}
			page := utils.TruncateRunes(utils.CleanHTML(rawHTML), maxPromptChars)
			event, ok := s.extractSingle(ctx, req.TaskID, link.URL, page)
			if !ok {
				return
			}
			if event.StartDate == "" && link.StartDate != "" {
				event.StartDate = link.StartDate
			}
			s.stampSource(&event, req)
			mu.Lock()
			out = append(out, event)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// classifyPage asks the model whether the page is one event or a list of
// links. A parse failure degrades to an empty list, never an error.
func (s *discoveryService) classifyPage(ctx context.Context, req DiscoveryRequest, page string) pageClassification {
	prompt := fmt.Sprintf(`You are given the text content of a web page at %s.
Decide whether this page describes exactly one event, or is a listing/calendar of multiple events.

Respond with a single JSON object:
{"type": "single"} if the page is one event, or
{"type": "list", "items": [{"url": "...", "start_date": "ISO8601 or null"}]} if it lists multiple events, with one item per event link found on the page.

Page content:
%s`, req.URL, page)

	raw, err := s.ai.Complete(ctx, "You classify event web pages. Respond with JSON only.", prompt)
	s.recordCall(ctx, req.TaskID, "page_classification", prompt, raw, err)
	if err != nil {
		s.log.Warn("Page classification call failed", "url", req.URL, "error", err)
		return pageClassification{Type: "list"}
	}

	obj := utils.SafeParseJSONObject(raw)
	if obj == nil {
		s.log.Warn("Page classification returned unparseable JSON", "url", req.URL)
		return pageClassification{Type: "list"}
	}

	var out pageClassification
	buf, _ := json.Marshal(obj)
	if err := json.Unmarshal(buf, &out); err != nil {
		return pageClassification{Type: "list"}
	}
	if out.Type != "single" {
		out.Type = "list"
	}
	return out
}

// extractListPage prompts the model to read events directly off a list page
// without following links. An empty result falls back to classification.
func (s *discoveryService) extractListPage(ctx context.Context, req DiscoveryRequest, page string) []types.NormalizedEventInput {
	prompt := fmt.Sprintf(`The following is the text content of a page at %s that lists multiple events inline.
Extract every event into a JSON object of the form:
{"events": [{"name": "...", "start_date": "ISO8601", "end_date": "ISO8601 or null", "ticket_url": "...", "event_url": "...", "image_url": "...", "location": "...", "price": "...", "description": "...", "tags": ["..."], "organizer": {"name": "...", "url": "..."}}]}
Use empty strings for unknown fields. Respond with JSON only.

Page content:
%s`, req.URL, page)

	raw, err := s.ai.Complete(ctx, "You extract structured event data from web pages. Respond with JSON only.", prompt)
	s.recordCall(ctx, req.TaskID, "list_page_extraction", prompt, raw, err)
	if err != nil {
		s.log.Warn("List page extraction call failed", "url", req.URL, "error", err)
		return nil
	}

	obj := utils.SafeParseJSONObject(raw)
	if obj == nil {
		return nil
	}
	rawEvents, ok := obj["events"].([]any)
	if !ok {
		return nil
	}

	out := make([]types.NormalizedEventInput, 0, len(rawEvents))
	for _, re := range rawEvents {
		m, ok := re.(map[string]any)
		if !ok {
			continue
		}
		event := eventFromAIObject(m)
		if event.Name == "" || event.StartDate == "" {
			continue
		}
		if event.EventURL == "" {
			event.EventURL = req.URL
		}
		s.stampSource(&event, req)
		out = append(out, event)
	}
	return out
}

// extractSingle extracts one event from an already-rendered page.
func (s *discoveryService) extractSingle(ctx context.Context, taskID *uuid.UUID, pageURL, page string) (types.NormalizedEventInput, bool) {
	prompt := fmt.Sprintf(`The following is the text content of an event page at %s.
Extract the event into a JSON object of the form:
{"name": "...", "start_date": "ISO8601", "end_date": "ISO8601 or null", "ticket_url": "...", "event_url": "...", "image_url": "...", "location": "...", "price": "...", "description": "...", "tags": ["..."], "organizer": {"name": "...", "url": "..."}}
Use empty strings for unknown fields. Respond with JSON only.

Page content:
%s`, pageURL, page)

	raw, err := s.ai.Complete(ctx, "You extract structured event data from web pages. Respond with JSON only.", prompt)
	s.recordCall(ctx, taskID, "single_event_extraction", prompt, raw, err)
	if err != nil {
		s.log.Warn("Single event extraction call failed", "url", pageURL, "error", err)
		return types.NormalizedEventInput{}, false
	}

	obj := utils.SafeParseJSONObject(raw)
	if obj == nil {
		s.log.Warn("Single event extraction returned unparseable JSON", "url", pageURL)
		return types.NormalizedEventInput{}, false
	}

	event := eventFromAIObject(obj)
	if event.Name == "" || event.StartDate == "" {
		return types.NormalizedEventInput{}, false
	}
	if event.EventURL == "" {
		event.EventURL = pageURL
	}
	event.SourceURL = pageURL
	return event, true
}

// resolveLinks makes every manifest URL absolute against the page origin,
// drops non-HTTP schemes and dedupes by canonical URL key.
func (s *discoveryService) resolveLinks(baseURL string, items []types.DiscoveredLink) []types.DiscoveredLink {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	seen := map[string]bool{}
	out := make([]types.DiscoveredLink, 0, len(items))
	for _, item := range items {
		raw := strings.TrimSpace(item.URL)
		if raw == "" {
			continue
		}
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if base != nil && !parsed.IsAbs() {
			parsed = base.ResolveReference(parsed)
		}
		abs := parsed.String()
		if !normalize.IsHTTPURL(abs) {
			continue
		}
		key := normalize.CanonicalURLKey(abs)
		if seen[key] {
			continue
		}
		seen[key] = true
		item.URL = normalize.CanonicalizeURL(abs)
		out = append(out, item)
	}
	return out
}

func (s *discoveryService) stampSource(event *types.NormalizedEventInput, req DiscoveryRequest) {
	if event.SourceURL == "" {
		event.SourceURL = req.URL
	}
	if event.SourceTicketingPlatform == "" {
		target := event.TicketURL
		if target == "" {
			target = event.EventURL
		}
		event.SourceTicketingPlatform = normalize.ClassifyPlatform(target)
	}
	if event.SourceOriginationPlatform == "" && req.Source != "" {
		event.SourceOriginationPlatform = req.Source
	}
	if event.OriginalID == "" {
		target := event.EventURL
		if target == "" {
			target = event.SourceURL
		}
		event.OriginalID = normalize.DeriveOriginalID(target, event.SourceTicketingPlatform)
	}
}

// recordCall persists a debug artifact for every AI call, parse result
// included. Logging failures are swallowed; artifacts are best effort.
func (s *discoveryService) recordCall(ctx context.Context, taskID *uuid.UUID, callType, prompt, response string, callErr error) {
	if s.aiCallRepo == nil {
		return
	}
	entry := &types.AICallLog{
		TaskID:   taskID,
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

func filterFuture(events []types.NormalizedEventInput, now time.Time) []types.NormalizedEventInput {
	nowISO := now.UTC().Format(time.RFC3339)
	out := make([]types.NormalizedEventInput, 0, len(events))
	for _, e := range events {
		if normalize.IsStartFuture(e.StartDate, nowISO) {
			out = append(out, e)
		}
	}
	return out
}

func filterFutureLinks(links []types.DiscoveredLink, now time.Time) []types.DiscoveredLink {
	nowISO := now.UTC().Format(time.RFC3339)
	out := make([]types.DiscoveredLink, 0, len(links))
	for _, l := range links {
		if l.StartDate == "" || normalize.IsStartFuture(l.StartDate, nowISO) {
			out = append(out, l)
		}
	}
	return out
}

func eventFromAIObject(m map[string]any) types.NormalizedEventInput {
	event := types.NormalizedEventInput{
		Name:        asString(m["name"]),
		StartDate:   normalize.ToISO(asString(m["start_date"])),
		EndDate:     normalize.ToISO(asString(m["end_date"])),
		TicketURL:   asString(m["ticket_url"]),
		EventURL:    asString(m["event_url"]),
		ImageURL:    asString(m["image_url"]),
		Location:    asString(m["location"]),
		Price:       asString(m["price"]),
		Description: asString(m["description"]),
	}
	if rawTags, ok := m["tags"].([]any); ok {
		for _, t := range rawTags {
			if tag := asString(t); tag != "" {
				event.Tags = append(event.Tags, tag)
			}
		}
	}
	if rawOrg, ok := m["organizer"].(map[string]any); ok {
		org := types.CreateOrganizerInput{
			Name:       asString(rawOrg["name"]),
			URL:        asString(rawOrg["url"]),
			OriginalID: asString(rawOrg["original_id"]),
		}
		if org.Name != "" || org.URL != "" {
			event.Organizer = &org
		}
	}
	return event
}

func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
