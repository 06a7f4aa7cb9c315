package repository

import (
	"context"
	"fmt"

	"MoverSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MarketRepository 市场当前态仓储接口
type MarketRepository interface {
	// GetByMarketIDs 按来源批量查询已存在的市场，key 为 market_id
	GetByMarketIDs(ctx context.Context, source model.Source, marketIDs []string) (map[string]*model.Market, error)
	// UpsertBatch 以 (market_id, source) 为冲突键批量插入或更新摄取字段
	// 不触碰排除相关字段与派生涨跌字段
	UpsertBatch(ctx context.Context, markets []*model.Market) BatchResult
	// GetByKey 查询单个市场
	GetByKey(ctx context.Context, source model.Source, marketID string) (*model.Market, error)
	// ListNotExcluded 查询全部未被排除的市场（供排行计算）
	ListNotExcluded(ctx context.Context) ([]*model.Market, error)
	// ListRecentlyUpdated 按最近摄取时间倒序查询未被排除的市场（排行兜底）
	ListRecentlyUpdated(ctx context.Context, limit int) ([]*model.Market, error)
}

type marketRepository struct {
	db *gorm.DB
}

// NewMarketRepository 创建 MarketRepository 实例
func NewMarketRepository(db *gorm.DB) MarketRepository {
	return &marketRepository{db: db}
}

// ingestColumns 刷新流程允许覆盖的列；排除标记与派生字段只由别处维护
var ingestColumns = []string{
	"market_name", "event_name", "market_url", "event_url", "description",
	"creation_date", "resolution_date", "current_price", "category",
	"source_tags", "last_updated", "updated_at",
}

func (r *marketRepository) GetByMarketIDs(ctx context.Context, source model.Source, marketIDs []string) (map[string]*model.Market, error) {
	if len(marketIDs) == 0 {
		return map[string]*model.Market{}, nil
	}
	var rows []*model.Market
	if err := r.db.WithContext(ctx).
		Where("source = ? AND market_id IN ?", source, marketIDs).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("批量查询市场失败: %w", err)
	}
	out := make(map[string]*model.Market, len(rows))
	for _, m := range rows {
		out[m.MarketID] = m
	}
	return out, nil
}

// UpsertBatch 先尝试整批 upsert；整批失败时退化为逐条写入，把失败隔离成逐条结果
func (r *marketRepository) UpsertBatch(ctx context.Context, markets []*model.Market) BatchResult {
	var result BatchResult
	if len(markets) == 0 {
		return result
	}

	onConflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_id"}, {Name: "source"}},
		DoUpdates: clause.AssignmentColumns(ingestColumns),
	}

	if err := r.db.WithContext(ctx).Clauses(onConflict).Create(&markets).Error; err == nil {
		result.Succeeded = len(markets)
		return result
	}

	// 整批失败，逐条重试以定位坏行
	for _, m := range markets {
		if err := r.db.WithContext(ctx).Clauses(onConflict).Create(m).Error; err != nil {
			result.addFailure(fmt.Sprintf("%s/%s", m.Source, m.MarketID), err)
			continue
		}
		result.Succeeded++
	}
	return result
}

func (r *marketRepository) GetByKey(ctx context.Context, source model.Source, marketID string) (*model.Market, error) {
	var m model.Market
	if err := r.db.WithContext(ctx).
		Where("source = ? AND market_id = ?", source, marketID).
		First(&m).Error; err != nil {
		return nil, fmt.Errorf("查询市场%s/%s失败: %w", source, marketID, err)
	}
	return &m, nil
}

func (r *marketRepository) ListNotExcluded(ctx context.Context) ([]*model.Market, error) {
	var rows []*model.Market
	if err := r.db.WithContext(ctx).
		Where("is_excluded = ?", false).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询未排除市场失败: %w", err)
	}
	return rows, nil
}

func (r *marketRepository) ListRecentlyUpdated(ctx context.Context, limit int) ([]*model.Market, error) {
	var rows []*model.Market
	if err := r.db.WithContext(ctx).
		Where("is_excluded = ?", false).
		Order("last_updated DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询最近更新市场失败: %w", err)
	}
	return rows, nil
}
