package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/iv9eni/ai-email-chat/internal/services"
)

// LogHandler exposes the audit log
type LogHandler struct {
	logService *services.LogService
}

// NewLogHandler creates a new LogHandler instance
func NewLogHandler(logService *services.LogService) *LogHandler {
	return &LogHandler{
		logService: logService,
	}
}

// QueryLogs returns log entries matching the query parameters
// GET /api/logs?account_id=&level=&module=&action=&page=&limit=
func (h *LogHandler) QueryLogs(c *gin.Context) {
	accountID, _ := strconv.ParseUint(c.DefaultQuery("account_id", "0"), 10, 32)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	result, err := h.logService.QueryLogs(services.LogQuery{
		AccountID: uint(accountID),
		Level:     c.Query("level"),
		Module:    c.Query("module"),
		Action:    c.Query("action"),
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to query logs",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"logs":  result.Logs,
			"total": result.Total,
			"page":  page,
			"limit": limit,
		},
	})
}
