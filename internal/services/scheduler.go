package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	redisclient "github.com/yungbote/eventscout-backend/internal/clients/redis"
	"github.com/yungbote/eventscout-backend/internal/logger"
	"github.com/yungbote/eventscout-backend/internal/repos"
	"github.com/yungbote/eventscout-backend/internal/sse"
	"github.com/yungbote/eventscout-backend/internal/types"
	"github.com/yungbote/eventscout-backend/internal/utils"
	"github.com/yungbote/eventscout-backend/internal/workerpool"
)

// JobOptions carries optional submission metadata.
type JobOptions struct {
	Source   string
	Mode     string
	Metadata map[string]any
}

// SchedulerService runs scrape jobs over two bounded priority pools: a wide
// task pool for scraping and a narrower upsert pool so bursts of scrape
// completions cannot overwhelm the store.
type SchedulerService interface {
	CreateJob(ctx context.Context, descriptors []types.TaskDescriptor, priority int, opts JobOptions) (uuid.UUID, error)
	GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, []*types.ScrapeTask, error)
	ListJobs(ctx context.Context) ([]*types.ScrapeJob, error)
	Close()
}

// MapPriority converts caller priority (1 highest .. 10 lowest) to pool
// priority, where a higher number runs first. Out-of-range values clamp.
func MapPriority(priority int) int {
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return 20 - priority
}

// jobProgress is the live in-memory counter set for one job. The persisted
// row is the source of truth for reads; this exists only so settlements can
// increment monotonically without re-reading the store.
type jobProgress struct {
	total     int
	completed int
	failed    int
	started   bool
}

type schedulerService struct {
	log        *logger.Logger
	jobRepo    repos.JobRepo
	taskRepo   repos.TaskRepo
	scraper    ScrapeService
	upserter   UpsertService
	classifier ClassificationService
	hub        *sse.StreamHub
	bus        redisclient.JobStreamBus

	taskPool   *workerpool.Pool
	upsertPool *workerpool.Pool

	mu       sync.Mutex
	progress map[uuid.UUID]*jobProgress

	// storeMu serializes job-row load+write pairs so a stalled settlement
	// cannot land after a later one and roll the persisted row back.
	storeMu sync.Mutex

	flight singleflight.Group
}

func NewSchedulerService(
	log *logger.Logger,
	jobRepo repos.JobRepo,
	taskRepo repos.TaskRepo,
	scraper ScrapeService,
	upserter UpsertService,
	classifier ClassificationService,
	hub *sse.StreamHub,
	bus redisclient.JobStreamBus,
) SchedulerService {
	serviceLog := log.With("service", "SchedulerService")
	taskConcurrency := utils.GetEnvAsInt("SCRAPE_TASK_CONCURRENCY", 200, serviceLog)
	upsertConcurrency := utils.GetEnvAsInt("SCRAPE_UPSERT_CONCURRENCY", 40, serviceLog)

	return &schedulerService{
		log:        serviceLog,
		jobRepo:    jobRepo,
		taskRepo:   taskRepo,
		scraper:    scraper,
		upserter:   upserter,
		classifier: classifier,
		hub:        hub,
		bus:        bus,
		taskPool:   workerpool.New("scrape-tasks", taskConcurrency, serviceLog),
		upsertPool: workerpool.New("event-upserts", upsertConcurrency, serviceLog),
		progress:   map[uuid.UUID]*jobProgress{},
	}
}

func (s *schedulerService) CreateJob(ctx context.Context, descriptors []types.TaskDescriptor, priority int, opts JobOptions) (uuid.UUID, error) {
	if len(descriptors) == 0 {
		return uuid.Nil, fmt.Errorf("job has no task descriptors")
	}

	var metadata datatypes.JSON
	if opts.Metadata != nil {
		buf, err := json.Marshal(opts.Metadata)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode job metadata: %w", err)
		}
		metadata = datatypes.JSON(buf)
	}

	job := &types.ScrapeJob{
		ID:         uuid.New(),
		Status:     types.JobStatusPending,
		Priority:   priority,
		TotalTasks: len(descriptors),
		Source:     opts.Source,
		Mode:       opts.Mode,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.jobRepo.Upsert(ctx, nil, job); err != nil {
		return uuid.Nil, fmt.Errorf("persist job: %w", err)
	}

	tasks := make([]*types.ScrapeTask, 0, len(descriptors))
	for _, desc := range descriptors {
		task := &types.ScrapeTask{
			ID:        uuid.New(),
			JobID:     job.ID,
			URL:       desc.URL,
			Source:    desc.Source,
			Status:    types.TaskStatusPending,
			Priority:  priority,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.taskRepo.Upsert(ctx, nil, task); err != nil {
			return uuid.Nil, fmt.Errorf("persist task: %w", err)
		}
		tasks = append(tasks, task)
	}

	s.mu.Lock()
	s.progress[job.ID] = &jobProgress{total: len(descriptors)}
	s.mu.Unlock()

	s.publishJob(job)

	effective := MapPriority(priority)
	for i := range tasks {
		task := tasks[i]
		desc := descriptors[i]
		accepted := s.taskPool.Submit(effective, func() {
			s.runTask(context.Background(), job.ID, task, desc, effective)
		})
		if !accepted {
			s.settleTask(context.Background(), job.ID, task, false, "scheduler shutting down")
		}
	}

	s.log.Info("Job submitted",
		"job_id", job.ID,
		"tasks", len(tasks),
		"priority", priority,
		"source", opts.Source,
	)
	return job.ID, nil
}

func (s *schedulerService) GetJob(ctx context.Context, id uuid.UUID) (*types.ScrapeJob, []*types.ScrapeTask, error) {
	job, err := s.jobRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, nil
	}
	tasks, err := s.taskRepo.ListByJob(ctx, nil, id)
	if err != nil {
		return nil, nil, err
	}
	return job, tasks, nil
}

func (s *schedulerService) ListJobs(ctx context.Context) ([]*types.ScrapeJob, error) {
	return s.jobRepo.List(ctx, nil)
}

func (s *schedulerService) Close() {
	s.taskPool.Close()
	s.upsertPool.Close()
}

type upsertTally struct {
	mu       sync.Mutex
	inserted int
	updated  int
	skipped  int
	failed   int
	errors   []string
	eventID  string
	// eventRank orders the representative eventID: inserted > updated.
	eventRank int
}

func (t *upsertTally) record(res UpsertResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch res.Outcome {
	case UpsertInserted:
		t.inserted++
		if t.eventRank < 2 && res.Event != nil {
			t.eventID = res.Event.ID.String()
			t.eventRank = 2
		}
	case UpsertUpdated:
		t.updated++
		if t.eventRank < 1 && res.Event != nil {
			t.eventID = res.Event.ID.String()
			t.eventRank = 1
		}
	case UpsertSkipped:
		t.skipped++
	case UpsertFailed:
		t.failed++
		if res.Err != nil {
			t.errors = append(t.errors, res.Err.Error())
		}
	}
}

// runTask executes one scrape task: scrape (or take the prefetched batch),
// fan candidates into the upsert pool, join on all of them and settle.
func (s *schedulerService) runTask(ctx context.Context, jobID uuid.UUID, task *types.ScrapeTask, desc types.TaskDescriptor, effectivePriority int) {
	startedAt := time.Now().UTC()
	task.Status = types.TaskStatusRunning
	task.Attempts++
	task.StartedAt = &startedAt
	s.persistTask(ctx, task)
	s.markJobRunning(ctx, jobID)

	var (
		candidates []types.NormalizedEventInput
		scrapeErr  error
	)
	if len(desc.Prefetched) > 0 {
		candidates = desc.Prefetched
	} else {
		candidates, scrapeErr = s.scraper.Scrape(ctx, &task.ID, desc)
	}

	if scrapeErr != nil {
		s.settleTask(ctx, jobID, task, false, fmt.Sprintf("scrape failed: %v", scrapeErr))
		return
	}
	if len(candidates) == 0 {
		s.settleTask(ctx, jobID, task, false, "scrape produced no events")
		return
	}

	for i := range candidates {
		mergeEventDefaults(&candidates[i], desc.EventDefaults)
	}

	tally := &upsertTally{}
	var wg sync.WaitGroup
	for _, candidate := range candidates {
		candidate := candidate
		wg.Add(1)
		accepted := s.upsertPool.Submit(effectivePriority, func() {
			defer wg.Done()
			tally.record(s.upserter.UpsertEvent(ctx, candidate))
		})
		if !accepted {
			wg.Done()
			tally.record(UpsertResult{Outcome: UpsertFailed, Err: fmt.Errorf("upsert pool closed")})
		}
	}
	wg.Wait()

	result, _ := json.Marshal(map[string]any{
		"inserted": tally.inserted,
		"updated":  tally.updated,
		"skipped":  tally.skipped,
		"failed":   tally.failed,
		"errors":   tally.errors,
	})
	task.Result = datatypes.JSON(result)
	task.EventID = tally.eventID

	if tally.failed > 0 {
		s.settleTask(ctx, jobID, task, false, fmt.Sprintf("%d of %d candidates failed to upsert", tally.failed, len(candidates)))
		return
	}
	s.settleTask(ctx, jobID, task, true, "")
}

// mergeEventDefaults fills empty candidate fields from an import source's
// configured defaults.
func mergeEventDefaults(candidate *types.NormalizedEventInput, defaults *types.NormalizedEventInput) {
	if defaults == nil {
		return
	}
	if candidate.Organizer == nil && defaults.Organizer != nil {
		copied := *defaults.Organizer
		candidate.Organizer = &copied
	}
	if candidate.Visibility == "" {
		candidate.Visibility = defaults.Visibility
	}
	if candidate.ApprovalStatus == "" {
		candidate.ApprovalStatus = defaults.ApprovalStatus
	}
	if candidate.Location == "" {
		candidate.Location = defaults.Location
	}
	if candidate.SourceOriginationPlatform == "" {
		candidate.SourceOriginationPlatform = defaults.SourceOriginationPlatform
	}
	if len(candidate.Communities) == 0 {
		candidate.Communities = defaults.Communities
	}
	if len(candidate.Tags) == 0 {
		candidate.Tags = defaults.Tags
	}
}

func (s *schedulerService) markJobRunning(ctx context.Context, jobID uuid.UUID) {
	s.mu.Lock()
	progress := s.progress[jobID]
	alreadyStarted := progress == nil || progress.started
	if progress != nil {
		progress.started = true
	}
	s.mu.Unlock()
	if alreadyStarted {
		return
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	job, err := s.jobRepo.GetByID(ctx, nil, jobID)
	if err != nil || job == nil {
		return
	}
	if job.Status != types.JobStatusPending {
		return
	}
	now := time.Now().UTC()
	job.Status = types.JobStatusRunning
	job.StartedAt = &now
	if err := s.jobRepo.Upsert(ctx, nil, job); err != nil {
		s.log.Error("Failed to mark job running", "job_id", jobID, "error", err)
		return
	}
	s.publishJob(job)
}

// settleTask records a terminal task state and applies the settlement to the
// job's counters. Counters are only ever incremented, never recomputed.
func (s *schedulerService) settleTask(ctx context.Context, jobID uuid.UUID, task *types.ScrapeTask, completed bool, errMsg string) {
	finishedAt := time.Now().UTC()
	task.FinishedAt = &finishedAt
	if completed {
		task.Status = types.TaskStatusCompleted
	} else {
		task.Status = types.TaskStatusFailed
		task.LastError = errMsg
	}
	s.persistTask(ctx, task)

	s.mu.Lock()
	progress := s.progress[jobID]
	if progress == nil {
		progress = &jobProgress{total: 0}
		s.progress[jobID] = progress
	}
	if completed {
		progress.completed++
	} else {
		progress.failed++
	}
	settled := progress.completed + progress.failed
	terminal := progress.total > 0 && settled >= progress.total
	completedCount := progress.completed
	failedCount := progress.failed
	if terminal {
		delete(s.progress, jobID)
	}
	s.mu.Unlock()

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	job, err := s.jobRepo.GetByID(ctx, nil, jobID)
	if err != nil || job == nil {
		s.log.Error("Failed to load job for settlement", "job_id", jobID, "error", err)
		return
	}
	// Each settlement carries a strictly larger settled sum than the one
	// before it. A snapshot at or behind the persisted row is stale; writing
	// it would overwrite a later settlement, possibly the terminal one.
	if job.CompletedTasks+job.FailedTasks >= completedCount+failedCount {
		return
	}
	job.CompletedTasks = completedCount
	job.FailedTasks = failedCount
	if terminal {
		now := time.Now().UTC()
		job.FinishedAt = &now
		if failedCount > 0 {
			job.Status = types.JobStatusFailed
		} else {
			job.Status = types.JobStatusCompleted
		}
	}
	if err := s.jobRepo.Upsert(ctx, nil, job); err != nil {
		s.log.Error("Failed to persist job settlement", "job_id", jobID, "error", err)
	}
	s.publishJob(job)

	if terminal {
		s.log.Info("Job finished",
			"job_id", jobID,
			"status", job.Status,
			"completed", completedCount,
			"failed", failedCount,
		)
		s.requestClassification()
	}
}

// requestClassification starts a classification run unless one is already in
// flight, in which case the request coalesces into it.
func (s *schedulerService) requestClassification() {
	if s.classifier == nil {
		return
	}
	go func() {
		_, _, _ = s.flight.Do("classification", func() (any, error) {
			if err := s.classifier.Run(context.Background()); err != nil {
				s.log.Error("Classification run failed", "error", err)
			}
			return nil, nil
		})
	}()
}

func (s *schedulerService) persistTask(ctx context.Context, task *types.ScrapeTask) {
	if err := s.taskRepo.Upsert(ctx, nil, task); err != nil {
		s.log.Error("Failed to persist task", "task_id", task.ID, "error", err)
	}
	s.publish(sse.StreamMessage{
		Channel: sse.ChannelScrapeJobs,
		Event:   sse.StreamEventTaskUpdated,
		Data:    task,
	})
}

func (s *schedulerService) publishJob(job *types.ScrapeJob) {
	s.publish(sse.StreamMessage{
		Channel: sse.ChannelScrapeJobs,
		Event:   sse.StreamEventJobUpdated,
		Data:    job,
	})
}

func (s *schedulerService) publish(msg sse.StreamMessage) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
	if s.bus != nil {
		if err := s.bus.Publish(context.Background(), msg); err != nil {
			s.log.Warn("Failed to publish stream message", "error", err)
		}
	}
}
