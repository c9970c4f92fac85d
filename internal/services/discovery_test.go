package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/eventscout-backend/internal/logger"
)

type fakeAI struct {
	mu    sync.Mutex
	calls []string
	reply func(systemPrompt, userPrompt string) (string, error)
}

func (f *fakeAI) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, userPrompt)
	f.mu.Unlock()
	return f.reply(systemPrompt, userPrompt)
}

func (f *fakeAI) Model() string { return "fake-model" }

type fakeRenderer struct {
	mu    sync.Mutex
	pages map[string]string
	seen  []string
}

func (f *fakeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	f.seen = append(f.seen, pageURL)
	f.mu.Unlock()
	if html, ok := f.pages[pageURL]; ok {
		return html, nil
	}
	return "", fmt.Errorf("no page for %s", pageURL)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func singleEventJSON(name, start string) string {
	return fmt.Sprintf(`{"name": %q, "start_date": %q, "ticket_url": "https://tickets.example.com/e/12345", "organizer": {"name": "Warehouse Collective"}}`, name, start)
}

func TestDiscoverSingleEventPage(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	ai := &fakeAI{reply: func(_, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "Decide whether") {
			return `{"type": "single"}`, nil
		}
		return singleEventJSON("Loft Party", "2024-07-01T20:00:00Z"), nil
	}}
	renderer := &fakeRenderer{pages: map[string]string{
		"https://venue.example.com/party": "<html><body>Loft Party</body></html>",
	}}

	svc := NewDiscoveryService(testLogger(t), ai, renderer, nil)
	events, err := svc.DiscoverAndExtract(context.Background(), DiscoveryRequest{
		URL: "https://venue.example.com/party",
		Now: now,
	})
	if err != nil {
		t.Fatalf("DiscoverAndExtract: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Name != "Loft Party" {
		t.Fatalf("unexpected name %q", events[0].Name)
	}
	if events[0].SourceURL != "https://venue.example.com/party" {
		t.Fatalf("unexpected source url %q", events[0].SourceURL)
	}
	if events[0].EventURL != "https://venue.example.com/party" {
		t.Fatalf("event url should default to the page url, got %q", events[0].EventURL)
	}
}

func TestDiscoverListPageDedupesAndFilters(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	ai := &fakeAI{reply: func(_, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "Decide whether") {
			return `{"type": "list", "items": [
				{"url": "https://venue.example.com/events/a?ref=1"},
				{"url": "https://venue.example.com/events/a#frag"},
				{"url": "/events/b"},
				{"url": "javascript:void(0)"},
				{"url": "mailto:hi@example.com"}
			]}`, nil
		}
		if strings.Contains(userPrompt, "/events/a") {
			return singleEventJSON("Event A", "2024-07-01T20:00:00Z"), nil
		}
		return singleEventJSON("Event B", "2024-05-01T20:00:00Z"), nil
	}}
	renderer := &fakeRenderer{pages: map[string]string{
		"https://venue.example.com/calendar": "<html><body>calendar</body></html>",
		"https://venue.example.com/events/a": "<html><body>a</body></html>",
		"https://venue.example.com/events/b": "<html><body>b</body></html>",
	}}

	svc := NewDiscoveryService(testLogger(t), ai, renderer, nil)
	events, err := svc.DiscoverAndExtract(context.Background(), DiscoveryRequest{
		URL: "https://venue.example.com/calendar",
		Now: now,
	})
	if err != nil {
		t.Fatalf("DiscoverAndExtract: %v", err)
	}

	// The two /events/a variants collapse to one, /events/b is relative but
	// resolvable, and the non-http schemes are dropped. Event B is in the
	// past so only Event A survives the future filter.
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Name != "Event A" {
		t.Fatalf("unexpected event %q", events[0].Name)
	}

	rendersOfA := 0
	for _, u := range renderer.seen {
		if strings.Contains(u, "/events/a") {
			rendersOfA++
		}
	}
	if rendersOfA != 1 {
		t.Fatalf("expected exactly 1 render of /events/a, got %d", rendersOfA)
	}
}

func TestDiscoverExtractFromListPageShortCircuits(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	ai := &fakeAI{reply: func(_, userPrompt string) (string, error) {
		if strings.Contains(userPrompt, "lists multiple events inline") {
			return `{"events": [
				{"name": "Inline One", "start_date": "2024-07-02T20:00:00Z"},
				{"name": "Inline Two", "start_date": "2024-08-02T20:00:00Z"}
			]}`, nil
		}
		return "", fmt.Errorf("unexpected AI call: %s", userPrompt[:40])
	}}
	renderer := &fakeRenderer{pages: map[string]string{
		"https://venue.example.com/calendar": "<html><body>calendar</body></html>",
	}}

	svc := NewDiscoveryService(testLogger(t), ai, renderer, nil)
	events, err := svc.DiscoverAndExtract(context.Background(), DiscoveryRequest{
		URL:                 "https://venue.example.com/calendar",
		ExtractFromListPage: true,
		Now:                 now,
	})
	if err != nil {
		t.Fatalf("DiscoverAndExtract: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if len(ai.calls) != 1 {
		t.Fatalf("expected a single AI call, got %d", len(ai.calls))
	}
}

func TestDiscoverClassificationParseFailureYieldsEmpty(t *testing.T) {
	ai := &fakeAI{reply: func(_, _ string) (string, error) {
		return "I could not find any structure here.", nil
	}}
	renderer := &fakeRenderer{pages: map[string]string{
		"https://venue.example.com/page": "<html><body>nothing</body></html>",
	}}

	svc := NewDiscoveryService(testLogger(t), ai, renderer, nil)
	events, err := svc.DiscoverAndExtract(context.Background(), DiscoveryRequest{
		URL: "https://venue.example.com/page",
		Now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("DiscoverAndExtract: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}
