package api

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"factory-status-backend/internal/store"
)

// GetMachineHistory handles GET /api/machines/:machine/history. The default
// range is the last 24 hours, results are capped and returned newest-first;
// format=csv exports oldest-first with a stable column order.
func (h *Handler) GetMachineHistory(c *gin.Context) {
	machine := c.Param("machine")

	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' timestamp format. Use RFC3339."})
			return
		}
		from = t.UTC()
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' timestamp format. Use RFC3339."})
			return
		}
		to = t.UTC()
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid 'limit'"})
			return
		}
		limit = n
	}

	exporting := c.Query("format") == "csv"

	records, err := h.store.QueryRecords(c.Request.Context(), store.RecordQuery{
		Machine:   machine,
		From:      from,
		To:        to,
		Limit:     limit,
		Ascending: exporting,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Historical query failed"})
		return
	}

	if !exporting {
		c.JSON(http.StatusOK, records)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=\""+machine+"-history.csv\"")

	w := csv.NewWriter(c.Writer)
	// Stable field order for downstream consumers.
	_ = w.Write([]string{"timestamp", "machine", "status", "power", "downtime", "shift", "durationSeconds"})
	for i := range records {
		rec := &records[i]
		_ = w.Write([]string{
			h.norm.Display(rec.RecordedAt),
			rec.MachineID,
			string(rec.Status),
			strconv.FormatBool(rec.Power),
			strconv.FormatBool(rec.Downtime),
			rec.Shift,
			strconv.Itoa(rec.DurationSeconds),
		})
	}
	w.Flush()
}
