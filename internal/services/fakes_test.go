package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/eventscout-backend/internal/types"
)

// In-memory repo fakes. They mimic the store's not-found-is-nil behavior and
// are safe for concurrent use so scheduler tests can exercise real fanout.

type fakeOrganizerRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.Organizer
}

func newFakeOrganizerRepo() *fakeOrganizerRepo {
	return &fakeOrganizerRepo{rows: map[uuid.UUID]*types.Organizer{}}
}

func (f *fakeOrganizerRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Organizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeOrganizerRepo) FindByNameOrAlias(ctx context.Context, tx *gorm.DB, name string) (*types.Organizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lowered := strings.ToLower(strings.TrimSpace(name))
	for _, row := range f.rows {
		if strings.ToLower(row.Name) == lowered {
			copied := *row
			return &copied, nil
		}
		var aliases []string
		_ = json.Unmarshal(row.Aliases, &aliases)
		for _, a := range aliases {
			if strings.ToLower(a) == lowered {
				copied := *row
				return &copied, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeOrganizerRepo) Create(ctx context.Context, tx *gorm.DB, organizer *types.Organizer) (*types.Organizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if organizer.ID == uuid.Nil {
		organizer.ID = uuid.New()
	}
	copied := *organizer
	f.rows[organizer.ID] = &copied
	return organizer, nil
}

func (f *fakeOrganizerRepo) Update(ctx context.Context, tx *gorm.DB, id uuid.UUID, patch map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("organizer %s not found", id)
	}
	for k, v := range patch {
		switch k {
		case "url":
			row.URL = v.(string)
		case "original_id":
			row.OriginalID = v.(string)
		case "aliases":
			row.Aliases = toAliasesJSON(v)
		case "hidden":
			row.Hidden = v.(bool)
		}
	}
	return nil
}

func toAliasesJSON(v any) datatypes.JSON {
	switch t := v.(type) {
	case datatypes.JSON:
		return t
	case []byte:
		return datatypes.JSON(t)
	default:
		buf, _ := json.Marshal(v)
		return datatypes.JSON(buf)
	}
}

type fakeCommunityRepo struct {
	mu   sync.Mutex
	rows []*types.Community
}

func (f *fakeCommunityRepo) GetOrganizerPublic(ctx context.Context, tx *gorm.DB, organizerID uuid.UUID) (*types.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.OrganizerID != nil && *row.OrganizerID == organizerID && row.Type == types.CommunityTypeOrganizerPublic {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeCommunityRepo) Create(ctx context.Context, tx *gorm.DB, community *types.Community) (*types.Community, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if community.ID == uuid.Nil {
		community.ID = uuid.New()
	}
	copied := *community
	f.rows = append(f.rows, &copied)
	return community, nil
}

type fakeEventRepo struct {
	mu   sync.Mutex
	rows []*types.Event
}

func (f *fakeEventRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeEventRepo) FindExisting(ctx context.Context, tx *gorm.DB, originalID string, startDate time.Time, organizerID uuid.UUID, name string) (*types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if originalID != "" && row.OriginalID == originalID {
			copied := *row
			return &copied, nil
		}
		if row.StartDate.Equal(startDate) && (row.OrganizerID == organizerID || row.Name == name) {
			copied := *row
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeEventRepo) Create(ctx context.Context, tx *gorm.DB, event *types.Event) (*types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	copied := *event
	f.rows = append(f.rows, &copied)
	return event, nil
}

func (f *fakeEventRepo) SetVisibility(ctx context.Context, tx *gorm.DB, id uuid.UUID, visibility string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			row.Visibility = visibility
			return nil
		}
	}
	return fmt.Errorf("event %s not found", id)
}

func (f *fakeEventRepo) ListQueuedFuture(ctx context.Context, tx *gorm.DB, now time.Time) ([]*types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.Event{}
	for _, row := range f.rows {
		if !row.StartDate.Before(now) && (row.ClassificationStatus == "" || row.ClassificationStatus == types.ClassificationStatusQueued) {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeEventRepo) SetClassificationStatus(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		for _, row := range f.rows {
			if row.ID == id {
				row.ClassificationStatus = status
			}
		}
	}
	return nil
}

func (f *fakeEventRepo) SetTags(ctx context.Context, tx *gorm.DB, id uuid.UUID, tags datatypes.JSON) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			row.Tags = tags
			return nil
		}
	}
	return fmt.Errorf("event %s not found", id)
}

func (f *fakeEventRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeEventCommunityRepo struct {
	mu   sync.Mutex
	rows []*types.EventCommunity
}

func (f *fakeEventCommunityRepo) Exists(ctx context.Context, tx *gorm.DB, eventID, communityID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.EventID == eventID && row.CommunityID == communityID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventCommunityRepo) Create(ctx context.Context, tx *gorm.DB, link *types.EventCommunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	copied := *link
	f.rows = append(f.rows, &copied)
	return nil
}

func (f *fakeEventCommunityRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeJobRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.ScrapeJob
	// beforeUpsert, when set, runs before the write takes effect so tests
	// can stall individual persists.
	beforeUpsert func(job *types.ScrapeJob)
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{rows: map[uuid.UUID]*types.ScrapeJob{}}
}

func (f *fakeJobRepo) Upsert(ctx context.Context, tx *gorm.DB, job *types.ScrapeJob) error {
	if f.beforeUpsert != nil {
		f.beforeUpsert(job)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.rows[job.ID] = &copied
	return nil
}

func (f *fakeJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row, ok := f.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeJobRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.ScrapeJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.ScrapeJob{}
	for _, row := range f.rows {
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

type fakeTaskRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.ScrapeTask
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{rows: map[uuid.UUID]*types.ScrapeTask{}}
}

func (f *fakeTaskRepo) Upsert(ctx context.Context, tx *gorm.DB, task *types.ScrapeTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	f.rows[task.ID] = &copied
	return nil
}

func (f *fakeTaskRepo) ListByJob(ctx context.Context, tx *gorm.DB, jobID uuid.UUID) ([]*types.ScrapeTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*types.ScrapeTask{}
	for _, row := range f.rows {
		if row.JobID == jobID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeRehost struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeRehost) Rehost(ctx context.Context, imageURL string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("image fetch failed for %s", imageURL)
	}
	return "https://storage.googleapis.com/event-images/abcd1234.jpg", nil
}
