package handlers

import (
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
)

const defaultRunLimit = 50

// RunHandler serves the recorded run history
type RunHandler struct {
	repo   domain.RunRepository
	logger *zap.Logger
}

// NewRunHandler creates a new run-history handler
func NewRunHandler(repo domain.RunRepository, logger *zap.Logger) *RunHandler {
	return &RunHandler{repo: repo, logger: logger}
}

// ListRuns handles GET /api/v1/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	var (
		runs []*domain.Run
		err  error
	)
	if district := c.Query("district"); district != "" {
		runs, err = h.repo.FindByDistrict(district, limit)
	} else {
		runs, err = h.repo.FindRecent(limit)
	}
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}

	c.JSON(http.StatusOK, runs)
}

// GetTotals handles GET /api/v1/runs/totals
func (h *RunHandler) GetTotals(c *gin.Context) {
	totals, err := h.repo.GetTotals()
	if err != nil {
		h.logger.Error("Failed to aggregate runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":       totals.Runs,
		"success":    totals.Success,
		"failed":     totals.Failed,
		"empty":      totals.Empty,
		"skipped":    totals.Skipped,
		"bytes":      totals.Bytes,
		"data_human": humanize.Bytes(uint64(totals.Bytes)),
	})
}
