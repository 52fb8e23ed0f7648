package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gps-fleet-backend/internal/derive"
	"gps-fleet-backend/internal/store"
)

// GetVehicleHistory handles GET /api/vehicles/:vehicle_id/history. Rows are
// always returned in ascending time order. With a `page` parameter the
// paginated variant is used (page size capped server-side).
func (h *Handler) GetVehicleHistory(c *gin.Context) {
	vehicleID, ok := parseVehicleID(c)
	if !ok {
		return
	}

	q, ok := parseHistoryQuery(c)
	if !ok {
		return
	}

	if pageParam := c.Query("page"); pageParam != "" {
		page, err := strconv.Atoi(pageParam)
		if err != nil || page < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'page' parameter"})
			return
		}
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

		result, err := h.store.GetHistoryPage(c.Request.Context(), vehicleID, q, page, pageSize)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	rows, err := h.store.GetHistory(c.Request.Context(), vehicleID, q)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// GetVehicleSegments handles GET /api/vehicles/:vehicle_id/segments: the
// drive/stop segmentation of a history window with its summary.
func (h *Handler) GetVehicleSegments(c *gin.Context) {
	vehicleID, ok := parseVehicleID(c)
	if !ok {
		return
	}

	q, ok := parseHistoryQuery(c)
	if !ok {
		return
	}

	rows, err := h.store.GetHistory(c.Request.Context(), vehicleID, q)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve history"})
		return
	}

	segments, summary := derive.BuildSegments(rows)
	c.JSON(http.StatusOK, gin.H{"segments": segments, "summary": summary})
}

func parseHistoryQuery(c *gin.Context) (store.HistoryQuery, bool) {
	var q store.HistoryQuery

	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'since' timestamp format. Use RFC3339."})
			return q, false
		}
		q.Since = &t
	}
	if until := c.Query("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'until' timestamp format. Use RFC3339."})
			return q, false
		}
		q.Until = &t
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit' parameter"})
			return q, false
		}
		q.Limit = n
	}
	return q, true
}
