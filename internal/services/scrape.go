package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/normalize"
	"github.com/yungbote/eventscout-backend/internal/types"
)

// DomainScraper handles a specific host, bypassing AI discovery.
type DomainScraper func(ctx context.Context, taskID *uuid.UUID, desc types.TaskDescriptor) ([]types.NormalizedEventInput, error)

// ScrapeService routes a task descriptor to a registered per-domain scraper
// when one exists, otherwise to the AI discovery engine.
type ScrapeService interface {
	Scrape(ctx context.Context, taskID *uuid.UUID, desc types.TaskDescriptor) ([]types.NormalizedEventInput, error)
	Register(host string, scraper DomainScraper)
}

type scrapeService struct {
	log       *logger.Logger
	discovery DiscoveryService
	registry  map[string]DomainScraper
}

func NewScrapeService(log *logger.Logger, discovery DiscoveryService) ScrapeService {
	s := &scrapeService{
		log:       log.With("service", "ScrapeService"),
		discovery: discovery,
		registry:  map[string]DomainScraper{},
	}
	s.Register("eventbrite.com", s.scrapeEventbrite)
	return s
}

func (s *scrapeService) Register(host string, scraper DomainScraper) {
	s.registry[strings.ToLower(host)] = scraper
}

func (s *scrapeService) Scrape(ctx context.Context, taskID *uuid.UUID, desc types.TaskDescriptor) ([]types.NormalizedEventInput, error) {
	if !normalize.IsHTTPURL(desc.URL) {
		return nil, fmt.Errorf("task url is not http(s): %q", desc.URL)
	}
	desc.URL = normalize.CanonicalizeURL(desc.URL)

	host := normalize.ResolveSourceHost(desc.URL)
	if scraper, ok := s.registry[host]; ok {
		return scraper(ctx, taskID, desc)
	}

	maxEvents := 1
	if desc.MultipleEvents {
		maxEvents = 0
	}
	return s.discovery.DiscoverAndExtract(ctx, DiscoveryRequest{
		URL:                 desc.URL,
		TaskID:              taskID,
		Source:              desc.Source,
		MaxEvents:           maxEvents,
		ExtractFromListPage: desc.ExtractFromListPage,
	})
}

// scrapeEventbrite handles eventbrite URLs. Organizer pages (/o/ paths) list
// every upcoming event for the organizer, so they always go through list
// discovery with the organizer's stable id stamped onto each candidate.
func (s *scrapeService) scrapeEventbrite(ctx context.Context, taskID *uuid.UUID, desc types.TaskDescriptor) ([]types.NormalizedEventInput, error) {
	isOrganizerPage := strings.Contains(desc.URL, "/o/")

	events, err := s.discovery.DiscoverAndExtract(ctx, DiscoveryRequest{
		URL:                 desc.URL,
		TaskID:              taskID,
		Source:              normalize.PlatformEventbrite,
		MaxEvents:           maxEventsFor(desc, isOrganizerPage),
		ExtractFromListPage: desc.ExtractFromListPage,
	})
	if err != nil {
		return nil, err
	}

	if isOrganizerPage {
		orgOriginalID := normalize.DeriveOrganizerOriginalID(desc.URL, normalize.PlatformEventbrite)
		for i := range events {
			if events[i].Organizer == nil {
				events[i].Organizer = &types.CreateOrganizerInput{}
			}
			if events[i].Organizer.OriginalID == "" {
				events[i].Organizer.OriginalID = orgOriginalID
			}
			if events[i].Organizer.URL == "" {
				events[i].Organizer.URL = desc.URL
			}
		}
	}
	return events, nil
}

func maxEventsFor(desc types.TaskDescriptor, listPage bool) int {
	if desc.MultipleEvents || listPage {
		return 0
	}
	return 1
}
