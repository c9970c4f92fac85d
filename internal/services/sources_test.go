package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/eventscout-backend/internal/types"
)

type fakeImportSourceRepo struct {
	rows []*types.ImportSource
}

func (f *fakeImportSourceRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.ImportSource, error) {
	out := []*types.ImportSource{}
	for _, row := range f.rows {
		if !row.IsExcluded {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeImportSourceRepo) Create(ctx context.Context, tx *gorm.DB, source *types.ImportSource) (*types.ImportSource, error) {
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	f.rows = append(f.rows, source)
	return source, nil
}

type captureScheduler struct {
	descriptors []types.TaskDescriptor
	priority    int
	opts        JobOptions
	jobID       uuid.UUID
}

func (c *captureScheduler) CreateJob(ctx context.Context, descriptors []types.TaskDescriptor, priority int, opts JobOptions) (uuid.UUID, error) {
	c.descriptors = descriptors
	c.priority = priority
	c.opts = opts
	c.jobID = uuid.New()
	return c.jobID, nil
}

func (c *captureScheduler) GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, []*types.ScrapeTask, error) {
	return nil, nil, nil
}

func (c *captureScheduler) ListJobs(ctx context.Context) ([]*types.ScrapeJob, error) {
	return nil, nil
}

func (c *captureScheduler) Close() {}

func TestBuildTasksAdaptsEveryKind(t *testing.T) {
	repo := &fakeImportSourceRepo{rows: []*types.ImportSource{
		{Kind: types.SourceKindEventbriteOrganizer, Identifier: "warehouse-collective-12345"},
		{
			Kind:       types.SourceKindURL,
			Identifier: "https://venue.example.com/calendar",
			Metadata:   datatypes.JSON([]byte(`{"multiple_events": true, "extract_from_list_page": true}`)),
			EventDefaults: datatypes.JSON([]byte(
				`{"visibility": "private", "organizer": {"name": "Venue Crew"}}`,
			)),
		},
		{Kind: types.SourceKindHandle, Identifier: "@warehousecollective"},
		{
			Kind:       types.SourceKindMailbox,
			Identifier: "events@warehouse.example.com",
			Metadata: datatypes.JSON([]byte(
				`{"candidates": [{"name": "Mail Event", "start_date": "2030-09-01T20:00:00Z"}]}`,
			)),
		},
		{Kind: "carrier_pigeon", Identifier: "coop-7"},
		{Kind: types.SourceKindURL, Identifier: "https://excluded.example.com", IsExcluded: true},
	}}

	svc := NewSourceRegistryService(testLogger(t), repo, &captureScheduler{})
	descriptors, err := svc.BuildTasks(context.Background())
	if err != nil {
		t.Fatalf("BuildTasks: %v", err)
	}
	if len(descriptors) != 4 {
		t.Fatalf("expected 4 descriptors, got %d: %+v", len(descriptors), descriptors)
	}

	byURL := map[string]types.TaskDescriptor{}
	for _, d := range descriptors {
		byURL[d.URL] = d
	}

	eb, ok := byURL["https://www.eventbrite.com/o/warehouse-collective-12345"]
	if !ok {
		t.Fatalf("missing eventbrite organizer descriptor: %+v", descriptors)
	}
	if !eb.MultipleEvents {
		t.Fatal("organizer pages list many events")
	}

	calendar, ok := byURL["https://venue.example.com/calendar"]
	if !ok {
		t.Fatal("missing url descriptor")
	}
	if !calendar.ExtractFromListPage || !calendar.MultipleEvents {
		t.Fatalf("url metadata flags not applied: %+v", calendar)
	}
	if calendar.EventDefaults == nil || calendar.EventDefaults.Visibility != types.VisibilityPrivate {
		t.Fatalf("event defaults not decoded: %+v", calendar.EventDefaults)
	}

	handle, ok := byURL["https://www.instagram.com/warehousecollective/"]
	if !ok {
		t.Fatal("missing handle descriptor")
	}
	if handle.Source != "instagram" {
		t.Fatalf("handle source = %q", handle.Source)
	}

	var mailbox *types.TaskDescriptor
	for _, d := range descriptors {
		if strings.HasPrefix(d.URL, "mailbox://") {
			copied := d
			mailbox = &copied
		}
	}
	if mailbox == nil {
		t.Fatal("missing mailbox descriptor")
	}
	if len(mailbox.Prefetched) != 1 || mailbox.Prefetched[0].Name != "Mail Event" {
		t.Fatalf("mailbox candidates not carried as prefetched: %+v", mailbox.Prefetched)
	}
}

func TestBuildTasksDedupesByCanonicalURL(t *testing.T) {
	repo := &fakeImportSourceRepo{rows: []*types.ImportSource{
		{Kind: types.SourceKindURL, Identifier: "https://venue.example.com/calendar?utm_source=x"},
		{Kind: types.SourceKindURL, Identifier: "https://venue.example.com/calendar/"},
	}}

	svc := NewSourceRegistryService(testLogger(t), repo, &captureScheduler{})
	descriptors, err := svc.BuildTasks(context.Background())
	if err != nil {
		t.Fatalf("BuildTasks: %v", err)
	}
	if len(descriptors) != 1 {
		t.Fatalf("expected canonical dedupe to 1 descriptor, got %d", len(descriptors))
	}
}

func TestRunAllSubmitsOneJob(t *testing.T) {
	repo := &fakeImportSourceRepo{rows: []*types.ImportSource{
		{Kind: types.SourceKindURL, Identifier: "https://venue.example.com/calendar"},
	}}
	sched := &captureScheduler{}

	svc := NewSourceRegistryService(testLogger(t), repo, sched)
	jobID, err := svc.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if jobID != sched.jobID {
		t.Fatal("RunAll should return the scheduler's job id")
	}
	if sched.priority != defaultImportPriority {
		t.Fatalf("import runs submit at priority %d, got %d", defaultImportPriority, sched.priority)
	}
	if len(sched.descriptors) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(sched.descriptors))
	}
	if sched.opts.Source != "import_sources" {
		t.Fatalf("unexpected job source %q", sched.opts.Source)
	}
}

func TestRunAllFailsWithNoSources(t *testing.T) {
	svc := NewSourceRegistryService(testLogger(t), &fakeImportSourceRepo{}, &captureScheduler{})
	if _, err := svc.RunAll(context.Background()); err == nil {
		t.Fatal("expected an error when no sources produce tasks")
	}
}
