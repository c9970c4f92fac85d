package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/normalize"
	"github.com/yungbote/eventscout-backend/internal/repos"
	"github.com/yungbote/eventscout-backend/internal/types"
)

// UpsertOutcome is the per-candidate result of an upsert attempt.
type UpsertOutcome string

const (
	UpsertInserted UpsertOutcome = "inserted"
	UpsertUpdated  UpsertOutcome = "updated"
	UpsertSkipped  UpsertOutcome = "skipped"
	UpsertFailed   UpsertOutcome = "failed"
)

// UpsertResult carries the outcome plus the affected event when one exists.
type UpsertResult struct {
	Outcome UpsertOutcome
	Event   *types.Event
	Err     error
}

// defaultEventDuration is applied when a candidate has no end date.
const defaultEventDuration = 3 * time.Hour

// UpsertService reconciles candidate events against the store: organizer
// identity resolution, existence matching, visibility escalation, community
// attachment and image rehosting.
type UpsertService interface {
	UpsertEvent(ctx context.Context, candidate types.NormalizedEventInput) UpsertResult
}

type upsertService struct {
	log           *logger.Logger
	organizerRepo repos.OrganizerRepo
	communityRepo repos.CommunityRepo
	eventRepo     repos.EventRepo
	eventCommRepo repos.EventCommunityRepo
	imageRehost   ImageRehostService
}

func NewUpsertService(
	log *logger.Logger,
	organizerRepo repos.OrganizerRepo,
	communityRepo repos.CommunityRepo,
	eventRepo repos.EventRepo,
	eventCommRepo repos.EventCommunityRepo,
	imageRehost ImageRehostService,
) UpsertService {
	return &upsertService{
		log:           log.With("service", "UpsertService"),
		organizerRepo: organizerRepo,
		communityRepo: communityRepo,
		eventRepo:     eventRepo,
		eventCommRepo: eventCommRepo,
		imageRehost:   imageRehost,
	}
}

func failed(err error) UpsertResult {
	return UpsertResult{Outcome: UpsertFailed, Err: err}
}

func (s *upsertService) UpsertEvent(ctx context.Context, candidate types.NormalizedEventInput) UpsertResult {
	if candidate.Name == "" {
		return failed(fmt.Errorf("candidate has no name"))
	}
	startDate, err := time.Parse(time.RFC3339, normalize.ToISO(candidate.StartDate))
	if err != nil {
		return failed(fmt.Errorf("candidate %q has unparseable start date %q", candidate.Name, candidate.StartDate))
	}

	organizer, community, err := s.resolveOrganizer(ctx, candidate)
	if err != nil {
		return failed(err)
	}
	if organizer.Hidden {
		s.log.Info("Skipping event for hidden organizer", "organizer", organizer.Name, "event", candidate.Name)
		return UpsertResult{Outcome: UpsertSkipped}
	}

	existing, err := s.eventRepo.FindExisting(ctx, nil, candidate.OriginalID, startDate, organizer.ID, candidate.Name)
	if err != nil {
		return failed(fmt.Errorf("existence check for %q: %w", candidate.Name, err))
	}

	if existing != nil {
		// Matched events keep their originally stored fields. Only the
		// visibility ratchet and community attachments apply.
		if candidate.Visibility == types.VisibilityPublic && existing.Visibility != types.VisibilityPublic {
			if err := s.eventRepo.SetVisibility(ctx, nil, existing.ID, types.VisibilityPublic); err != nil {
				return failed(fmt.Errorf("visibility escalation for %q: %w", candidate.Name, err))
			}
			existing.Visibility = types.VisibilityPublic
		}
		if err := s.attachCommunities(ctx, existing.ID, community, candidate.Communities); err != nil {
			return failed(err)
		}
		return UpsertResult{Outcome: UpsertUpdated, Event: existing}
	}

	imageURL := candidate.ImageURL
	if imageURL != "" {
		rehosted, err := s.imageRehost.Rehost(ctx, imageURL)
		if err != nil {
			return failed(fmt.Errorf("rehost image for %q: %w", candidate.Name, err))
		}
		imageURL = rehosted
	}

	event, err := s.buildEvent(candidate, organizer.ID, startDate, imageURL)
	if err != nil {
		return failed(err)
	}
	created, err := s.eventRepo.Create(ctx, nil, event)
	if err != nil {
		return failed(fmt.Errorf("insert event %q: %w", candidate.Name, err))
	}

	if err := s.attachCommunities(ctx, created.ID, community, candidate.Communities); err != nil {
		return failed(err)
	}
	return UpsertResult{Outcome: UpsertInserted, Event: created}
}

// resolveOrganizer resolves the candidate's organizer reference to a row and
// the organizer's owned community, creating both when absent.
func (s *upsertService) resolveOrganizer(ctx context.Context, candidate types.NormalizedEventInput) (*types.Organizer, *types.Community, error) {
	ref := candidate.Organizer
	if ref == nil || (ref.ID == "" && ref.Name == "") {
		return nil, nil, fmt.Errorf("candidate %q has no organizer reference", candidate.Name)
	}

	var organizer *types.Organizer

	if ref.ID != "" {
		id, err := uuid.Parse(ref.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("organizer id %q: %w", ref.ID, err)
		}
		organizer, err = s.organizerRepo.GetByID(ctx, nil, id)
		if err != nil {
			return nil, nil, fmt.Errorf("load organizer %s: %w", ref.ID, err)
		}
		if organizer == nil {
			return nil, nil, fmt.Errorf("organizer %s not found", ref.ID)
		}
	} else {
		existing, err := s.organizerRepo.FindByNameOrAlias(ctx, nil, ref.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve organizer %q: %w", ref.Name, err)
		}
		if existing != nil {
			organizer = existing
			if err := s.mergeOrganizer(ctx, organizer, ref); err != nil {
				return nil, nil, err
			}
		} else {
			aliases, _ := json.Marshal([]string{ref.Name})
			created, err := s.organizerRepo.Create(ctx, nil, &types.Organizer{
				Name:       ref.Name,
				URL:        ref.URL,
				OriginalID: ref.OriginalID,
				Aliases:    datatypes.JSON(aliases),
			})
			if err != nil {
				return nil, nil, fmt.Errorf("create organizer %q: %w", ref.Name, err)
			}
			organizer = created
		}
	}

	community, err := s.getOrCreateCommunity(ctx, organizer)
	if err != nil {
		return nil, nil, err
	}
	return organizer, community, nil
}

// mergeOrganizer fills missing fields on a matched organizer and accumulates
// the incoming name as an alias. Aliases are never removed.
func (s *upsertService) mergeOrganizer(ctx context.Context, organizer *types.Organizer, ref *types.CreateOrganizerInput) error {
	patch := map[string]any{}
	if organizer.URL == "" && ref.URL != "" {
		patch["url"] = ref.URL
		organizer.URL = ref.URL
	}
	if organizer.OriginalID == "" && ref.OriginalID != "" {
		patch["original_id"] = ref.OriginalID
		organizer.OriginalID = ref.OriginalID
	}

	var aliases []string
	if len(organizer.Aliases) > 0 {
		_ = json.Unmarshal(organizer.Aliases, &aliases)
	}
	known := false
	for _, a := range aliases {
		if strings.EqualFold(a, ref.Name) {
			known = true
			break
		}
	}
	if !known && !strings.EqualFold(organizer.Name, ref.Name) {
		aliases = append(aliases, ref.Name)
		buf, _ := json.Marshal(aliases)
		patch["aliases"] = datatypes.JSON(buf)
		organizer.Aliases = datatypes.JSON(buf)
	}

	if len(patch) == 0 {
		return nil
	}
	if err := s.organizerRepo.Update(ctx, nil, organizer.ID, patch); err != nil {
		return fmt.Errorf("merge organizer %q: %w", organizer.Name, err)
	}
	return nil
}

func (s *upsertService) getOrCreateCommunity(ctx context.Context, organizer *types.Organizer) (*types.Community, error) {
	community, err := s.communityRepo.GetOrganizerPublic(ctx, nil, organizer.ID)
	if err != nil {
		return nil, fmt.Errorf("load community for organizer %q: %w", organizer.Name, err)
	}
	if community != nil {
		return community, nil
	}
	orgID := organizer.ID
	created, err := s.communityRepo.Create(ctx, nil, &types.Community{
		Name:        organizer.Name,
		OrganizerID: &orgID,
		Visibility:  types.VisibilityPublic,
		Type:        types.CommunityTypeOrganizerPublic,
	})
	if err != nil {
		return nil, fmt.Errorf("create community for organizer %q: %w", organizer.Name, err)
	}
	return created, nil
}

// attachCommunities links the event to the organizer community and every
// community listed on the candidate. Existing links are skipped.
func (s *upsertService) attachCommunities(ctx context.Context, eventID uuid.UUID, organizerCommunity *types.Community, refs []types.CommunityRef) error {
	ids := make([]uuid.UUID, 0, len(refs)+1)
	if organizerCommunity != nil {
		ids = append(ids, organizerCommunity.ID)
	}
	for _, ref := range refs {
		id, err := uuid.Parse(ref.ID)
		if err != nil {
			return fmt.Errorf("community id %q: %w", ref.ID, err)
		}
		ids = append(ids, id)
	}

	for _, communityID := range ids {
		exists, err := s.eventCommRepo.Exists(ctx, nil, eventID, communityID)
		if err != nil {
			return fmt.Errorf("check community link: %w", err)
		}
		if exists {
			continue
		}
		if err := s.eventCommRepo.Create(ctx, nil, &types.EventCommunity{
			EventID:     eventID,
			CommunityID: communityID,
		}); err != nil {
			return fmt.Errorf("attach community: %w", err)
		}
	}
	return nil
}

func (s *upsertService) buildEvent(candidate types.NormalizedEventInput, organizerID uuid.UUID, startDate time.Time, imageURL string) (*types.Event, error) {
	endDate := startDate.Add(defaultEventDuration)
	if candidate.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, normalize.ToISO(candidate.EndDate))
		if err == nil {
			endDate = parsed
		}
	}

	tags := candidate.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	visibility := candidate.Visibility
	if visibility == "" {
		visibility = types.VisibilityPublic
	}
	approval := candidate.ApprovalStatus
	if approval == "" {
		approval = types.ApprovalStatusApproved
	}

	return &types.Event{
		OriginalID:                candidate.OriginalID,
		OrganizerID:               organizerID,
		Name:                      candidate.Name,
		StartDate:                 startDate,
		EndDate:                   &endDate,
		TicketURL:                 normalize.CanonicalizeURL(candidate.TicketURL),
		EventURL:                  normalize.CanonicalizeURL(candidate.EventURL),
		SourceURL:                 candidate.SourceURL,
		ImageURL:                  imageURL,
		Location:                  candidate.Location,
		Price:                     candidate.Price,
		Description:               candidate.Description,
		Tags:                      datatypes.JSON(tagsJSON),
		SourceTicketingPlatform:   candidate.SourceTicketingPlatform,
		SourceOriginationPlatform: candidate.SourceOriginationPlatform,
		Visibility:                visibility,
		ApprovalStatus:            approval,
		ClassificationStatus:      types.ClassificationStatusQueued,
		TimestampScraped:          time.Now().UTC(),
	}, nil
}
