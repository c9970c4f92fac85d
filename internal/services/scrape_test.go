package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/eventscout-backend/internal/types"
)

type fakeDiscovery struct {
	lastReq DiscoveryRequest
	fn      func(req DiscoveryRequest) ([]types.NormalizedEventInput, error)
}

func (f *fakeDiscovery) DiscoverAndExtract(ctx context.Context, req DiscoveryRequest) ([]types.NormalizedEventInput, error) {
	f.lastReq = req
	return f.fn(req)
}

func TestScrapeRejectsNonHTTPURLs(t *testing.T) {
	svc := NewScrapeService(testLogger(t), &fakeDiscovery{})
	if _, err := svc.Scrape(context.Background(), nil, types.TaskDescriptor{URL: "ftp://example.com"}); err == nil {
		t.Fatal("expected an error for a non-http url")
	}
}

func TestScrapeRoutesToRegisteredDomain(t *testing.T) {
	discovery := &fakeDiscovery{fn: func(req DiscoveryRequest) ([]types.NormalizedEventInput, error) {
		t.Fatal("registered domains must not fall back to discovery")
		return nil, nil
	}}
	svc := NewScrapeService(testLogger(t), discovery)

	called := false
	svc.Register("venue.example.com", func(ctx context.Context, taskID *uuid.UUID, desc types.TaskDescriptor) ([]types.NormalizedEventInput, error) {
		called = true
		return []types.NormalizedEventInput{{Name: "Direct"}}, nil
	})

	events, err := svc.Scrape(context.Background(), nil, types.TaskDescriptor{URL: "https://www.venue.example.com/party"})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if !called || len(events) != 1 {
		t.Fatalf("registered scraper not used (called=%v, events=%d)", called, len(events))
	}
}

func TestScrapeFallsBackToDiscovery(t *testing.T) {
	discovery := &fakeDiscovery{fn: func(req DiscoveryRequest) ([]types.NormalizedEventInput, error) {
		return []types.NormalizedEventInput{{Name: "Discovered"}}, nil
	}}
	svc := NewScrapeService(testLogger(t), discovery)

	events, err := svc.Scrape(context.Background(), nil, types.TaskDescriptor{
		URL:            "https://unknown.example.com/party?utm_source=feed",
		MultipleEvents: true,
	})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if discovery.lastReq.URL != "https://unknown.example.com/party" {
		t.Fatalf("tracking params should be stripped before discovery, got %q", discovery.lastReq.URL)
	}
	if discovery.lastReq.MaxEvents != 0 {
		t.Fatalf("multiple_events should remove the single-event cap, got %d", discovery.lastReq.MaxEvents)
	}
}

func TestScrapeEventbriteOrganizerStampsOrganizer(t *testing.T) {
	discovery := &fakeDiscovery{fn: func(req DiscoveryRequest) ([]types.NormalizedEventInput, error) {
		return []types.NormalizedEventInput{
			{Name: "One"},
			{Name: "Two", Organizer: &types.CreateOrganizerInput{Name: "Known", OriginalID: "eventbrite-1"}},
		}, nil
	}}
	svc := NewScrapeService(testLogger(t), discovery)

	events, err := svc.Scrape(context.Background(), nil, types.TaskDescriptor{
		URL: "https://www.eventbrite.com/o/warehouse-collective-12345",
	})
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Organizer == nil || events[0].Organizer.OriginalID == "" {
		t.Fatalf("organizer original id should be derived from the page url: %+v", events[0].Organizer)
	}
	if events[1].Organizer.OriginalID != "eventbrite-1" {
		t.Fatalf("existing organizer original id must not be overwritten, got %q", events[1].Organizer.OriginalID)
	}
}
