package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"factory-status-backend/internal/model"
	"factory-status-backend/internal/store"
)

// liveStateResponse is the flattened structure for live-state responses.
// Connectivity is derived from the age of lastUpdated on every read.
type liveStateResponse struct {
	Machine       string             `json:"machine"`
	Status        model.Status       `json:"status"`
	Power         bool               `json:"power"`
	Downtime      bool               `json:"downtime"`
	Shift         string             `json:"shift"`
	UptimeSeconds int64              `json:"uptimeSeconds"`
	LastUpdated   time.Time          `json:"lastUpdated"`
	LastChange    time.Time          `json:"lastChange"`
	LastPolled    time.Time          `json:"lastPolled"`
	Connectivity  model.Connectivity `json:"connectivity"`
	DisplayTime   string             `json:"displayTime"`
}

func (h *Handler) toLiveResponse(s *model.LiveState, now time.Time) liveStateResponse {
	return liveStateResponse{
		Machine:       s.MachineID,
		Status:        s.Status,
		Power:         s.Power,
		Downtime:      s.Downtime,
		Shift:         s.Shift,
		UptimeSeconds: s.UptimeSeconds,
		LastUpdated:   s.LastUpdated,
		LastChange:    s.LastChange,
		LastPolled:    s.LastPolled,
		Connectivity:  s.ConnectivityAt(now),
		DisplayTime:   h.norm.Display(s.LastUpdated),
	}
}

// ListMachines handles GET /api/machines.
func (h *Handler) ListMachines(c *gin.Context) {
	states, err := h.store.ListLiveStates(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve live states"})
		return
	}

	now := time.Now().UTC()
	response := make([]liveStateResponse, 0, len(states))
	for i := range states {
		response = append(response, h.toLiveResponse(&states[i], now))
	}
	c.JSON(http.StatusOK, response)
}

// GetMachine handles GET /api/machines/:machine.
func (h *Handler) GetMachine(c *gin.Context) {
	machine := c.Param("machine")
	state, err := h.store.GetLiveState(c.Request.Context(), machine)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "machine has never reported"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve live state"})
		return
	}
	c.JSON(http.StatusOK, h.toLiveResponse(&state, time.Now().UTC()))
}

// ResetMachine handles DELETE /api/machines/:machine/live, the only
// operation that removes a live snapshot.
func (h *Handler) ResetMachine(c *gin.Context) {
	machine := c.Param("machine")
	if err := h.store.ResetLiveState(c.Request.Context(), machine); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "machine has never reported"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset live state"})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStats handles GET /api/stats.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.StatsOverview(c.Request.Context(), time.Now().UTC())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
