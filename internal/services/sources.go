package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/normalize"
	"github.com/yungbote/eventscout-backend/internal/repos"
	"github.com/yungbote/eventscout-backend/internal/types"
)

// defaultImportPriority is used for scheduled import runs; ad hoc API
// submissions pick their own.
const defaultImportPriority = 5

// sourceAdapter turns one configured import source into task descriptors.
type sourceAdapter func(source *types.ImportSource, defaults *types.NormalizedEventInput) ([]types.TaskDescriptor, error)

// SourceRegistryService maps configured import sources to normalized task
// descriptors, one adapter per source kind, and submits them as a job.
type SourceRegistryService interface {
	BuildTasks(ctx context.Context) ([]types.TaskDescriptor, error)
	RunAll(ctx context.Context) (uuid.UUID, error)
}

type sourceRegistryService struct {
	log        *logger.Logger
	sourceRepo repos.ImportSourceRepo
	scheduler  SchedulerService
	adapters   map[string]sourceAdapter
}

func NewSourceRegistryService(log *logger.Logger, sourceRepo repos.ImportSourceRepo, scheduler SchedulerService) SourceRegistryService {
	s := &sourceRegistryService{
		log:        log.With("service", "SourceRegistryService"),
		sourceRepo: sourceRepo,
		scheduler:  scheduler,
	}
	s.adapters = map[string]sourceAdapter{
		types.SourceKindEventbriteOrganizer: adaptEventbriteOrganizer,
		types.SourceKindURL:                 adaptURL,
		types.SourceKindHandle:              adaptHandle,
		types.SourceKindMailbox:             adaptMailbox,
	}
	return s
}

// BuildTasks converts every active import source into task descriptors.
// Sources with a broken configuration are logged and skipped; one bad row
// must not block the rest of an import run.
func (s *sourceRegistryService) BuildTasks(ctx context.Context) ([]types.TaskDescriptor, error) {
	sources, err := s.sourceRepo.ListActive(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list import sources: %w", err)
	}

	seen := map[string]bool{}
	out := []types.TaskDescriptor{}
	for _, source := range sources {
		adapter, ok := s.adapters[source.Kind]
		if !ok {
			s.log.Warn("Import source has unknown kind", "source_id", source.ID, "kind", source.Kind)
			continue
		}

		var defaults *types.NormalizedEventInput
		if len(source.EventDefaults) > 0 {
			defaults = &types.NormalizedEventInput{}
			if err := json.Unmarshal(source.EventDefaults, defaults); err != nil {
				s.log.Warn("Import source has unparseable event defaults", "source_id", source.ID, "error", err)
				defaults = nil
			}
		}

		descriptors, err := adapter(source, defaults)
		if err != nil {
			s.log.Warn("Import source adapter failed", "source_id", source.ID, "kind", source.Kind, "error", err)
			continue
		}
		for _, desc := range descriptors {
			key := normalize.CanonicalURLKey(desc.URL)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, desc)
		}
	}
	return out, nil
}

func (s *sourceRegistryService) RunAll(ctx context.Context) (uuid.UUID, error) {
	descriptors, err := s.BuildTasks(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if len(descriptors) == 0 {
		return uuid.Nil, fmt.Errorf("no active import sources produced tasks")
	}
	return s.scheduler.CreateJob(ctx, descriptors, defaultImportPriority, JobOptions{
		Source: "import_sources",
		Mode:   "scheduled",
	})
}

func adaptEventbriteOrganizer(source *types.ImportSource, defaults *types.NormalizedEventInput) ([]types.TaskDescriptor, error) {
	identifier := strings.TrimSpace(source.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("eventbrite organizer source has no identifier")
	}
	url := identifier
	if !normalize.IsHTTPURL(url) {
		url = "https://www.eventbrite.com/o/" + strings.TrimPrefix(identifier, "/")
	}
	return []types.TaskDescriptor{{
		URL:            url,
		Source:         normalize.PlatformEventbrite,
		EventDefaults:  defaults,
		MultipleEvents: true,
	}}, nil
}

func adaptURL(source *types.ImportSource, defaults *types.NormalizedEventInput) ([]types.TaskDescriptor, error) {
	url := strings.TrimSpace(source.Identifier)
	if !normalize.IsHTTPURL(url) {
		return nil, fmt.Errorf("url source identifier %q is not http(s)", source.Identifier)
	}
	var meta struct {
		MultipleEvents      bool `json:"multiple_events"`
		ExtractFromListPage bool `json:"extract_from_list_page"`
	}
	if len(source.Metadata) > 0 {
		_ = json.Unmarshal(source.Metadata, &meta)
	}
	return []types.TaskDescriptor{{
		URL:                 url,
		EventDefaults:       defaults,
		MultipleEvents:      meta.MultipleEvents,
		ExtractFromListPage: meta.ExtractFromListPage,
	}}, nil
}

// adaptHandle maps a social handle to the profile page that lists its
// events. The handle's platform comes from metadata, defaulting to instagram.
func adaptHandle(source *types.ImportSource, defaults *types.NormalizedEventInput) ([]types.TaskDescriptor, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(source.Identifier), "@")
	if handle == "" {
		return nil, fmt.Errorf("handle source has no identifier")
	}
	platform := "instagram"
	if len(source.Metadata) > 0 {
		var meta struct {
			Platform string `json:"platform"`
		}
		if err := json.Unmarshal(source.Metadata, &meta); err == nil && meta.Platform != "" {
			platform = strings.ToLower(meta.Platform)
		}
	}

	var url string
	switch platform {
	case "instagram":
		url = "https://www.instagram.com/" + handle + "/"
	case "partiful":
		url = "https://partiful.com/u/" + handle
	case "luma":
		url = "https://lu.ma/u/" + handle
	default:
		return nil, fmt.Errorf("unsupported handle platform %q", platform)
	}

	return []types.TaskDescriptor{{
		URL:            url,
		Source:         platform,
		EventDefaults:  defaults,
		MultipleEvents: true,
	}}, nil
}

// adaptMailbox expects batch-parsed mail candidates in metadata; mailbox
// sources never scrape live.
func adaptMailbox(source *types.ImportSource, defaults *types.NormalizedEventInput) ([]types.TaskDescriptor, error) {
	if len(source.Metadata) == 0 {
		return nil, fmt.Errorf("mailbox source %q has no parsed candidates", source.Identifier)
	}
	var meta struct {
		Candidates []types.NormalizedEventInput `json:"candidates"`
	}
	if err := json.Unmarshal(source.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("mailbox source %q: %w", source.Identifier, err)
	}
	if len(meta.Candidates) == 0 {
		return nil, fmt.Errorf("mailbox source %q has no parsed candidates", source.Identifier)
	}
	return []types.TaskDescriptor{{
		URL:           "mailbox://" + source.Identifier,
		Source:        "mailbox",
		EventDefaults: defaults,
		Prefetched:    meta.Candidates,
	}}, nil
}
