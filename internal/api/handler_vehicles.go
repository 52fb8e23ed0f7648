package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"gps-fleet-backend/internal/derive"
	"gps-fleet-backend/internal/model"
	"gps-fleet-backend/internal/mw"
)

// vehicleResponse is a last known state enriched with daily counters.
type vehicleResponse struct {
	model.VehicleState
	Daily derive.DailyCounters `json:"daily"`
}

// GetVehicles handles the GET /api/vehicles request: every vehicle's last
// known state with counters-since-day-start. A failing baseline lookup
// degrades to raw cumulative counters instead of failing the request.
func (h *Handler) GetVehicles(c *gin.Context) {
	states, err := h.store.GetLastAll(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicles"})
		return
	}

	dayStart := derive.LocalDayStart(time.Now().UTC(), h.offsetHours)
	starts, startsErr := h.store.GetTodayStartValues(c.Request.Context(), dayStart)

	response := make([]vehicleResponse, 0, len(states))
	for i := range states {
		var baseline *model.VehicleHistory
		if row, ok := starts[states[i].VehicleID]; ok {
			baseline = &row
		}
		response = append(response, vehicleResponse{
			VehicleState: states[i],
			Daily:        derive.ComputeDailyDeltas(&states[i], baseline),
		})
	}

	if startsErr != nil {
		// Serve last-known data anyway; freshness is best-effort. Keep the
		// degraded reply out of the response cache so recovery is immediate.
		c.Set(mw.SkipCacheKey, true)
		c.JSON(http.StatusOK, gin.H{"vehicles": response, "error": startsErr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vehicles": response})
}

// GetVehicle handles the GET /api/vehicles/:vehicle_id request.
func (h *Handler) GetVehicle(c *gin.Context) {
	vehicleID, ok := parseVehicleID(c)
	if !ok {
		return
	}

	state, err := h.store.GetLastByVehicleID(c.Request.Context(), vehicleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicle"})
		}
		return
	}
	c.JSON(http.StatusOK, state)
}

func parseVehicleID(c *gin.Context) (int64, bool) {
	vehicleID, err := strconv.ParseInt(c.Param("vehicle_id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid vehicle ID"})
		return 0, false
	}
	return vehicleID, true
}
