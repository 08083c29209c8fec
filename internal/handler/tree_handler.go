package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/landuse-tree/internal/cluster"
	"github.com/jengzang/landuse-tree/internal/contexttree"
	"github.com/jengzang/landuse-tree/internal/models"
	"github.com/jengzang/landuse-tree/internal/repository"
	"github.com/jengzang/landuse-tree/internal/service"
	"github.com/jengzang/landuse-tree/pkg/response"
)

var treeErrors = response.Mapping{
	http.StatusBadRequest: {
		contexttree.ErrInvalidParameter,
		contexttree.ErrNoClusters,
		cluster.ErrInvalidTimeRange,
	},
	http.StatusNotFound: {repository.ErrRunNotFound},
}

// TreeHandler handles HTTP requests for context tree builds
type TreeHandler struct {
	service *service.TreeService
}

// NewTreeHandler creates a new tree handler
func NewTreeHandler(service *service.TreeService) *TreeHandler {
	return &TreeHandler{service: service}
}

// CreateTreeRequest represents the request body for building a tree.
// Unset parameters take the configured defaults.
type CreateTreeRequest struct {
	Summaries      json.RawMessage `json:"summaries" binding:"required"`
	Lambda         *float64        `json:"lambda"`
	PruneThreshold *float64        `json:"prune_threshold"`
	Xi             *float64        `json:"xi"`
	Oracle         string          `json:"oracle"`
	Summary        bool            `json:"summary"`
}

func (r CreateTreeRequest) params(defaults models.BuildParams) models.BuildParams {
	p := defaults
	if r.Lambda != nil {
		p.Lambda = *r.Lambda
	}
	if r.PruneThreshold != nil {
		p.PruneThreshold = *r.PruneThreshold
	}
	if r.Xi != nil {
		p.Xi = *r.Xi
	}
	if r.Oracle != "" {
		p.Oracle = r.Oracle
	}
	p.Summary = r.Summary
	return p
}

// CreateTree builds, prunes and stores a context tree
// POST /api/v1/trees
func (h *TreeHandler) CreateTree(c *gin.Context) {
	var req CreateTreeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	summaries, err := models.DecodeSummaries(req.Summaries)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	run, err := h.service.Run(c.Request.Context(), summaries, req.params(h.service.DefaultParams()))
	if err != nil {
		code := treeErrors.StatusFor(err)
		if errors.Is(err, service.ErrBuildFailed) && run != nil {
			response.ErrorWithData(c, code, err.Error(), run)
			return
		}
		response.Error(c, code, err.Error())
		return
	}

	response.Success(c, run)
}

// GetTree retrieves a run with its tree
// GET /api/v1/trees/:id
func (h *TreeHandler) GetTree(c *gin.Context) {
	run, err := h.service.GetRun(c.Param("id"))
	if err != nil {
		response.FromError(c, treeErrors, err)
		return
	}

	response.Success(c, run)
}

// ListTrees retrieves runs
// GET /api/v1/trees
func (h *TreeHandler) ListTrees(c *gin.Context) {
	status := c.Query("status")
	limitStr := c.DefaultQuery("limit", "20")
	offsetStr := c.DefaultQuery("offset", "0")

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		limit = 20
	}

	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		offset = 0
	}

	runs, err := h.service.ListRuns(status, limit, offset)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

// GetTreeNodes retrieves the flattened nodes of a run
// GET /api/v1/trees/:id/nodes?pruned=true|false
func (h *TreeHandler) GetTreeNodes(c *gin.Context) {
	var pruned *bool
	if v := c.Query("pruned"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "Invalid pruned filter")
			return
		}
		pruned = &b
	}

	nodes, err := h.service.GetNodes(c.Param("id"), pruned)
	if err != nil {
		response.FromError(c, treeErrors, err)
		return
	}

	response.Success(c, gin.H{
		"nodes": nodes,
		"count": len(nodes),
	})
}
