package api

import (
	"errors"
	"net/http"
	"time"

	"MoverSync/internal/model"
	"MoverSync/internal/repository"
	"MoverSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MoverHandler 涨跌排行与AI解读接口
type MoverHandler struct {
	marketRepo   repository.MarketRepository
	engine       *service.ChangeEngine
	moverService *service.MoverService
	rationale    *service.RationaleService
	logger       *logrus.Logger
}

// NewMoverHandler 创建 MoverHandler
func NewMoverHandler(db *gorm.DB, rationale *service.RationaleService, logger *logrus.Logger) *MoverHandler {
	marketRepo := repository.NewMarketRepository(db)
	engine := service.NewChangeEngine(repository.NewHistoryRepository(db), logger)
	return &MoverHandler{
		marketRepo:   marketRepo,
		engine:       engine,
		moverService: service.NewMoverService(marketRepo, engine, logger),
		rationale:    rationale,
		logger:       logger,
	}
}

// ListMovers 指定周期的涨跌排行
// GET /api/movers?period=1d
func (h *MoverHandler) ListMovers(c *gin.Context) {
	period, err := service.ParsePeriod(c.DefaultQuery("period", "1d"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.moverService.TopMovers(c.Request.Context(), period)
	if err != nil {
		h.logger.WithError(err).Error("ListMovers failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetMarketDetail 单个市场详情（带读取时计算的涨跌字段）
// GET /api/markets/:source/:market_id
func (h *MoverHandler) GetMarketDetail(c *gin.Context) {
	source := model.Source(c.Param("source"))
	marketID := c.Param("market_id")

	m, err := h.marketRepo.GetByKey(c.Request.Context(), source, marketID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("GetMarketDetail failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.engine.ComputeChanges(c.Request.Context(), m, time.Now().UTC()).ApplyTo(m)
	c.JSON(http.StatusOK, m)
}

type explainRequest struct {
	Source   string `json:"source" binding:"required"`
	MarketID string `json:"market_id" binding:"required"`
	Period   string `json:"period" binding:"required"`
}

// ExplainMover 为单个上榜市场生成AI解读，结果不落库
// POST /api/movers/explain
func (h *MoverHandler) ExplainMover(c *gin.Context) {
	var req explainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	period, err := service.ParsePeriod(req.Period)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.marketRepo.GetByKey(c.Request.Context(), model.Source(req.Source), req.MarketID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("ExplainMover failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.engine.ComputeChanges(c.Request.Context(), m, time.Now().UTC()).ApplyTo(m)

	text, err := h.rationale.Explain(c.Request.Context(), m, period)
	if err != nil {
		h.logger.WithError(err).Error("ExplainMover failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source":    req.Source,
		"market_id": req.MarketID,
		"period":    period,
		"rationale": text,
	})
}
