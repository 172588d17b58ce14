package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"highlight_courier/internal/domain"
	"highlight_courier/internal/selection"
	"highlight_courier/internal/service"
)

// errorResponse renders a structured error: kind plus human message, mapped
// to an HTTP status.
func errorResponse(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation, domain.KindScheduling:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindConstraint:
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{
		"kind":  string(domain.KindOf(err)),
		"error": err.Error(),
	})
}

func (s *Server) searchHighlights(c *gin.Context) {
	filters := service.SearchFilters{
		SourceID: c.Query("source"),
	}
	if raw := c.Query("category"); raw != "" {
		cat := domain.ParseCategory(raw)
		filters.Category = &cat
	}
	if raw := c.Query("has_note"); raw != "" {
		hasNote := raw == "true"
		filters.HasNote = &hasNote
	}
	if raw := c.Query("created_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errorResponse(c, domain.NewValidation("bad created_after %q", raw))
			return
		}
		filters.CreatedAfter = &t
	}
	if raw := c.Query("created_before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			errorResponse(c, domain.NewValidation("bad created_before %q", raw))
			return
		}
		filters.CreatedBefore = &t
	}

	sortKey, err := service.ParseSortKey(c.Query("sort"))
	if err != nil {
		errorResponse(c, err)
		return
	}

	highlights, err := s.query.Search(c.Request.Context(), c.Query("q"), filters)
	if err != nil {
		errorResponse(c, err)
		return
	}
	highlights = service.SortHighlights(highlights, sortKey)

	total := len(highlights)
	pageSize := intQuery(c, "page_size", 50)
	page := intQuery(c, "page", 1)
	highlights = service.Paginate(highlights, pageSize, page)

	c.JSON(http.StatusOK, gin.H{
		"total":      total,
		"page":       page,
		"page_size":  pageSize,
		"highlights": highlights,
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.analytics.Stats(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getAdvancedStats(c *gin.Context) {
	stats, err := s.analytics.AdvancedStats(c.Request.Context(), intQuery(c, "top", 10))
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type selectionRequest struct {
	Count      int      `json:"count"`
	Mode       string   `json:"mode"`
	Sources    []string `json:"sources"`
	Categories []string `json:"categories"`
	MinAgeDays int      `json:"min_age_days"`
}

func (s *Server) previewSelection(c *gin.Context) {
	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, domain.NewValidation("bad request body: %v", err))
		return
	}

	mode, err := selection.ParseMode(req.Mode)
	if err != nil {
		errorResponse(c, err)
		return
	}

	constraints := selection.Constraints{
		Sources: req.Sources,
		MinAge:  time.Duration(req.MinAgeDays) * 24 * time.Hour,
	}
	for _, raw := range req.Categories {
		constraints.Categories = append(constraints.Categories, domain.ParseCategory(raw))
	}

	picked, err := s.selection.Select(c.Request.Context(), req.Count, mode, constraints)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"highlights": picked})
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) commitSelection(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, domain.NewValidation("bad request body: %v", err))
		return
	}
	if err := s.selection.CommitSelection(c.Request.Context(), req.IDs); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"committed": len(req.IDs)})
}

func (s *Server) deleteSource(c *gin.Context) {
	id := c.Param("id")
	if err := s.maint.DeleteSource(c.Request.Context(), id); err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) latestCycle(c *gin.Context) {
	rec, err := s.maint.LastCycle(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) triggerDelivery(c *gin.Context) {
	s.trigger.RunCycle(c.Request.Context())
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

type bulkUpdateRequest struct {
	IDs   []string              `json:"ids"`
	Patch domain.HighlightPatch `json:"patch"`
}

func (s *Server) bulkUpdate(c *gin.Context) {
	var req bulkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, domain.NewValidation("bad request body: %v", err))
		return
	}
	results, err := s.maint.BulkUpdate(c.Request.Context(), req.IDs, req.Patch)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) bulkDelete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, domain.NewValidation("bad request body: %v", err))
		return
	}
	results := s.maint.BulkDelete(c.Request.Context(), req.IDs)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) cleanup(c *gin.Context) {
	var policy service.CleanupPolicy
	if err := c.ShouldBindJSON(&policy); err != nil {
		errorResponse(c, domain.NewValidation("bad request body: %v", err))
		return
	}
	report, err := s.maint.Cleanup(c.Request.Context(), policy)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) exportAll(c *gin.Context) {
	snap, err := s.maint.ExportAll(c.Request.Context())
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) importAll(c *gin.Context) {
	var snap domain.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		errorResponse(c, domain.NewValidation("bad request body: %v", err))
		return
	}
	opts := service.ImportOptions{
		Overwrite:      c.Query("overwrite") == "true",
		SkipDuplicates: c.Query("skip_duplicates") == "true",
	}
	report, err := s.maint.ImportAll(c.Request.Context(), &snap, opts)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
