package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/eventscout-backend/internal/services"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type JobsHandler struct {
	scheduler services.SchedulerService
}

func NewJobsHandler(scheduler services.SchedulerService) *JobsHandler {
	return &JobsHandler{scheduler: scheduler}
}

type createJobRequest struct {
	// Tasks accepts either bare URL strings or full descriptor objects.
	Tasks    []json.RawMessage `json:"tasks"`
	Priority int               `json:"priority"`
	Source   string            `json:"source"`
	Mode     string            `json:"mode"`
	Metadata map[string]any    `json:"metadata"`
}

func decodeDescriptors(raw []json.RawMessage) ([]types.TaskDescriptor, error) {
	out := make([]types.TaskDescriptor, 0, len(raw))
	for i, r := range raw {
		var asURL string
		if err := json.Unmarshal(r, &asURL); err == nil {
			out = append(out, types.TaskDescriptor{URL: asURL})
			continue
		}
		var desc types.TaskDescriptor
		if err := json.Unmarshal(r, &desc); err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		out = append(out, desc)
	}
	return out, nil
}

// POST /api/scrape/jobs
func (h *JobsHandler) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(req.Tasks) == 0 {
		RespondError(c, http.StatusBadRequest, "no_tasks", errors.New("tasks is required"))
		return
	}
	descriptors, err := decodeDescriptors(req.Tasks)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task", err)
		return
	}
	priority := req.Priority
	if priority == 0 {
		priority = 5
	}

	jobID, err := h.scheduler.CreateJob(c.Request.Context(), descriptors, priority, services.JobOptions{
		Source:   req.Source,
		Mode:     req.Mode,
		Metadata: req.Metadata,
	})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_submit_failed", err)
		return
	}

	RespondOK(c, gin.H{"job_id": jobID})
}

// GET /api/scrape/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, tasks, err := h.scheduler.GetJob(c.Request.Context(), jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "job_not_found", fmt.Errorf("job %s not found", jobID))
		return
	}

	RespondOK(c, gin.H{"job": job, "tasks": tasks})
}

// GET /api/scrape/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	jobs, err := h.scheduler.ListJobs(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}
