package api

import (
	"errors"
	"net/http"

	"MoverSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type RefreshHandler struct {
	refreshService *service.RefreshService
	logger         *logrus.Logger
}

func NewRefreshHandler(refreshService *service.RefreshService, logger *logrus.Logger) *RefreshHandler {
	return &RefreshHandler{
		refreshService: refreshService,
		logger:         logger,
	}
}

// TriggerRefresh 手动触发一轮全来源刷新
// POST /sync/refresh
func (h *RefreshHandler) TriggerRefresh(c *gin.Context) {
	summary, err := h.refreshService.RefreshAll(c.Request.Context())
	if errors.Is(err, service.ErrRefreshInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Errorf("刷新失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}
