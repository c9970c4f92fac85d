package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/eventscout-backend/internal/types"
)

type fakeScraper struct {
	mu      sync.Mutex
	results map[string]func() ([]types.NormalizedEventInput, error)
}

func (f *fakeScraper) Scrape(ctx context.Context, taskID *uuid.UUID, desc types.TaskDescriptor) ([]types.NormalizedEventInput, error) {
	f.mu.Lock()
	fn, ok := f.results[desc.URL]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no scraper scripted for %s", desc.URL)
	}
	return fn()
}

func (f *fakeScraper) Register(host string, scraper DomainScraper) {}

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeClassifier) Run(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil
}

func (f *fakeClassifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitForTerminalJob(t *testing.T, jobs *fakeJobRepo, id uuid.UUID) *types.ScrapeJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.GetByID(context.Background(), nil, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if job != nil && (job.Status == types.JobStatusCompleted || job.Status == types.JobStatusFailed) {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return nil
}

func TestMapPriority(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{1, 19},
		{5, 15},
		{10, 10},
		{0, 19},
		{-3, 19},
		{11, 10},
		{100, 10},
	}
	for _, c := range cases {
		if got := MapPriority(c.in); got != c.want {
			t.Fatalf("MapPriority(%d) = %d, want %d", c.in, got, c.want)
		}
	}
	// Monotonic within range: a numerically lower caller priority always
	// maps to a higher pool priority.
	for p := 1; p < 10; p++ {
		if MapPriority(p) <= MapPriority(p+1) {
			t.Fatalf("mapping not monotonic at %d", p)
		}
	}
}

func TestCreateJobRejectsEmptyDescriptorList(t *testing.T) {
	f := newUpsertFixture(t)
	sched := NewSchedulerService(testLogger(t), newFakeJobRepo(), newFakeTaskRepo(), &fakeScraper{}, f.svc, &fakeClassifier{}, nil, nil)
	defer sched.Close()

	if _, err := sched.CreateJob(context.Background(), nil, 5, JobOptions{}); err == nil {
		t.Fatal("expected an error for an empty descriptor list")
	}
}

func TestSchedulerEndToEnd(t *testing.T) {
	f := newUpsertFixture(t)

	// One event already exists; two of the incoming candidates duplicate it.
	seededStart := time.Date(2030, 7, 1, 20, 0, 0, 0, time.UTC)
	if _, err := f.events.Create(context.Background(), nil, &types.Event{
		OriginalID: "eventbrite-99999",
		Name:       "Existing Social",
		StartDate:  seededStart,
	}); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	newCandidate := types.NormalizedEventInput{
		OriginalID: "eventbrite-11111",
		Name:       "Brand New Party",
		StartDate:  "2030-08-01T20:00:00Z",
		Organizer:  &types.CreateOrganizerInput{Name: "Warehouse Collective"},
	}
	dupCandidate := types.NormalizedEventInput{
		OriginalID: "eventbrite-99999",
		Name:       "Existing Social",
		StartDate:  "2030-07-01T20:00:00Z",
		Organizer:  &types.CreateOrganizerInput{Name: "Warehouse Collective"},
	}

	scraper := &fakeScraper{results: map[string]func() ([]types.NormalizedEventInput, error){
		"https://a.example.com/events": func() ([]types.NormalizedEventInput, error) {
			return []types.NormalizedEventInput{newCandidate, dupCandidate}, nil
		},
		"https://b.example.com/events": func() ([]types.NormalizedEventInput, error) {
			return nil, fmt.Errorf("connection reset by peer")
		},
	}}
	classifier := &fakeClassifier{}

	jobs := newFakeJobRepo()
	tasks := newFakeTaskRepo()
	sched := NewSchedulerService(testLogger(t), jobs, tasks, scraper, f.svc, classifier, nil, nil)
	defer sched.Close()

	descriptors := []types.TaskDescriptor{
		{URL: "https://a.example.com/events"},
		{URL: "https://b.example.com/events"},
		{URL: "https://c.example.com/prefetched", Prefetched: []types.NormalizedEventInput{dupCandidate}},
	}
	jobID, err := sched.CreateJob(context.Background(), descriptors, 3, JobOptions{Source: "test"})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job := waitForTerminalJob(t, jobs, jobID)
	if job.TotalTasks != 3 {
		t.Fatalf("total tasks = %d, want 3", job.TotalTasks)
	}
	if job.CompletedTasks != 2 || job.FailedTasks != 1 {
		t.Fatalf("completed/failed = %d/%d, want 2/1", job.CompletedTasks, job.FailedTasks)
	}
	if job.CompletedTasks+job.FailedTasks != job.TotalTasks {
		t.Fatal("terminal job must have all tasks settled")
	}
	if job.Status != types.JobStatusFailed {
		t.Fatalf("job with a failed task must be failed, got %q", job.Status)
	}
	if job.FinishedAt == nil {
		t.Fatal("terminal job must carry finished_at")
	}

	// Seeded row plus exactly one new event.
	if f.events.count() != 2 {
		t.Fatalf("expected 2 event rows, got %d", f.events.count())
	}

	taskRows, err := tasks.ListByJob(context.Background(), nil, jobID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	if len(taskRows) != 3 {
		t.Fatalf("expected 3 task rows, got %d", len(taskRows))
	}
	for _, task := range taskRows {
		if task.Attempts != 1 {
			t.Fatalf("task %s attempts = %d, want 1", task.URL, task.Attempts)
		}
		switch task.URL {
		case "https://b.example.com/events":
			if task.Status != types.TaskStatusFailed || task.LastError == "" {
				t.Fatalf("task B should fail with an error, got %q / %q", task.Status, task.LastError)
			}
		default:
			if task.Status != types.TaskStatusCompleted {
				t.Fatalf("task %s should complete, got %q (%s)", task.URL, task.Status, task.LastError)
			}
			if task.EventID == "" {
				t.Fatalf("task %s should record a representative event id", task.URL)
			}
		}
	}

	// Classification is requested once, after the last settlement.
	deadline := time.Now().Add(2 * time.Second)
	for classifier.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := classifier.count(); got != 1 {
		t.Fatalf("classification should run exactly once, got %d", got)
	}
}

func TestSchedulerStalledSettlementCannotOverwriteTerminalRow(t *testing.T) {
	f := newUpsertFixture(t)
	scraper := &fakeScraper{results: map[string]func() ([]types.NormalizedEventInput, error){
		"https://fast.example.com": func() ([]types.NormalizedEventInput, error) {
			return []types.NormalizedEventInput{candidateFixture()}, nil
		},
		"https://slow.example.com": func() ([]types.NormalizedEventInput, error) {
			time.Sleep(50 * time.Millisecond)
			return nil, fmt.Errorf("connection reset by peer")
		},
	}}

	// Stall the first settlement's persist well past the second task's
	// failure. Unserialized, the stalled write lands after the terminal one
	// and rolls the row back to running with stale counters.
	jobs := newFakeJobRepo()
	var stall sync.Once
	jobs.beforeUpsert = func(job *types.ScrapeJob) {
		if job.CompletedTasks+job.FailedTasks == 1 {
			stall.Do(func() { time.Sleep(300 * time.Millisecond) })
		}
	}

	sched := NewSchedulerService(testLogger(t), jobs, newFakeTaskRepo(), scraper, f.svc, &fakeClassifier{}, nil, nil)
	defer sched.Close()

	jobID, err := sched.CreateJob(context.Background(), []types.TaskDescriptor{
		{URL: "https://fast.example.com"},
		{URL: "https://slow.example.com"},
	}, 5, JobOptions{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	waitForTerminalJob(t, jobs, jobID)

	// Give any straggling write time to land, then re-read the row.
	time.Sleep(100 * time.Millisecond)
	job, err := jobs.GetByID(context.Background(), nil, jobID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Status != types.JobStatusFailed {
		t.Fatalf("persisted status = %q, want %q", job.Status, types.JobStatusFailed)
	}
	if job.CompletedTasks != 1 || job.FailedTasks != 1 {
		t.Fatalf("persisted completed/failed = %d/%d, want 1/1", job.CompletedTasks, job.FailedTasks)
	}
	if job.FinishedAt == nil {
		t.Fatal("terminal job must keep finished_at")
	}
}

func TestSchedulerPrefetchedBypassesScraping(t *testing.T) {
	f := newUpsertFixture(t)
	scraper := &fakeScraper{results: map[string]func() ([]types.NormalizedEventInput, error){}}
	jobs := newFakeJobRepo()
	sched := NewSchedulerService(testLogger(t), jobs, newFakeTaskRepo(), scraper, f.svc, &fakeClassifier{}, nil, nil)
	defer sched.Close()

	jobID, err := sched.CreateJob(context.Background(), []types.TaskDescriptor{
		{URL: "https://nowhere.example.com", Prefetched: []types.NormalizedEventInput{candidateFixture()}},
	}, 5, JobOptions{})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job := waitForTerminalJob(t, jobs, jobID)
	if job.Status != types.JobStatusCompleted {
		t.Fatalf("prefetched task should complete without a scraper, got %q", job.Status)
	}
	if f.events.count() != 1 {
		t.Fatalf("expected 1 event row, got %d", f.events.count())
	}
}
