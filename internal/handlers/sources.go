package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/yungbote/eventscout-backend/internal/repos"
	"github.com/yungbote/eventscout-backend/internal/services"
	"github.com/yungbote/eventscout-backend/internal/types"
)

type SourcesHandler struct {
	sourceRepo repos.ImportSourceRepo
	registry   services.SourceRegistryService
}

func NewSourcesHandler(sourceRepo repos.ImportSourceRepo, registry services.SourceRegistryService) *SourcesHandler {
	return &SourcesHandler{sourceRepo: sourceRepo, registry: registry}
}

// GET /api/sources
func (h *SourcesHandler) ListSources(c *gin.Context) {
	sources, err := h.sourceRepo.ListActive(c.Request.Context(), nil)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "source_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"sources": sources})
}

type createSourceRequest struct {
	Kind          string         `json:"kind"`
	Identifier    string         `json:"identifier"`
	Metadata      map[string]any `json:"metadata"`
	EventDefaults map[string]any `json:"event_defaults"`
}

// POST /api/sources
func (h *SourcesHandler) CreateSource(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.Kind == "" || req.Identifier == "" {
		RespondError(c, http.StatusBadRequest, "invalid_source", errors.New("kind and identifier are required"))
		return
	}

	source := &types.ImportSource{
		Kind:           req.Kind,
		Identifier:     req.Identifier,
		ApprovalStatus: types.ApprovalStatusApproved,
	}
	if req.Metadata != nil {
		buf, err := json.Marshal(req.Metadata)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_metadata", err)
			return
		}
		source.Metadata = datatypes.JSON(buf)
	}
	if req.EventDefaults != nil {
		buf, err := json.Marshal(req.EventDefaults)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_event_defaults", err)
			return
		}
		source.EventDefaults = datatypes.JSON(buf)
	}

	created, err := h.sourceRepo.Create(c.Request.Context(), nil, source)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "source_create_failed", err)
		return
	}
	RespondOK(c, gin.H{"source": created})
}

// POST /api/sources/run
func (h *SourcesHandler) RunAll(c *gin.Context) {
	jobID, err := h.registry.RunAll(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "source_run_failed", err)
		return
	}
	RespondOK(c, gin.H{"job_id": jobID})
}
