package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MoverSync/internal/model"

	"gorm.io/gorm"
)

// HistoryRepository 历史价格快照仓储接口，只追加、只读取，从不修改或删除
type HistoryRepository interface {
	// InsertBatch 批量追加快照，逐条结果，批内失败不中止
	InsertBatch(ctx context.Context, rows []*model.HistoricalPrice) BatchResult
	// FindNearest 查询目标时刻±tolerance窗口内最近的一条快照
	// 窗口内有多条时取时间最晚的；没有命中返回 (nil, nil)
	FindNearest(ctx context.Context, source model.Source, marketID string, target time.Time, tolerance time.Duration) (*model.HistoricalPrice, error)
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository 创建 HistoryRepository 实例
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

// InsertBatch 先整批插入，失败再逐条定位；历史表无唯一约束，失败通常是连接或字段异常
func (r *historyRepository) InsertBatch(ctx context.Context, rows []*model.HistoricalPrice) BatchResult {
	var result BatchResult
	if len(rows) == 0 {
		return result
	}

	if err := r.db.WithContext(ctx).Create(&rows).Error; err == nil {
		result.Succeeded = len(rows)
		return result
	}

	for _, h := range rows {
		if err := r.db.WithContext(ctx).Create(h).Error; err != nil {
			result.addFailure(fmt.Sprintf("%s/%s", h.Source, h.MarketID), err)
			continue
		}
		result.Succeeded++
	}
	return result
}

func (r *historyRepository) FindNearest(ctx context.Context, source model.Source, marketID string, target time.Time, tolerance time.Duration) (*model.HistoricalPrice, error) {
	var row model.HistoricalPrice
	err := r.db.WithContext(ctx).
		Where("market_id = ? AND source = ? AND timestamp BETWEEN ? AND ?",
			marketID, source, target.Add(-tolerance), target.Add(tolerance)).
		Order("timestamp DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询历史快照失败: %w", err)
	}
	return &row, nil
}
