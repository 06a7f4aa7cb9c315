package service

import (
	"context"
	"math"
	"sync"
	"time"

	"MoverSync/internal/model"
	"MoverSync/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	lookback1Day   = 24 * time.Hour
	lookback1Week  = 7 * 24 * time.Hour
	lookback1Month = 30 * 24 * time.Hour

	// toleranceWindow 历史快照匹配回看时刻的±容差
	toleranceWindow = 4 * time.Hour

	// changeBatchSize 批量计算的并发分组大小，限制同时在途的历史查询数
	changeBatchSize = 10
)

// ChangeEngine 价格变动引擎：只读市场表与历史表，在读取时计算各回看周期的涨跌
type ChangeEngine struct {
	history repository.HistoryRepository
	logger  *logrus.Logger
}

// NewChangeEngine 创建价格变动引擎
func NewChangeEngine(history repository.HistoryRepository, logger *logrus.Logger) *ChangeEngine {
	return &ChangeEngine{history: history, logger: logger}
}

// ComputeChanges 计算单个市场在三个回看周期上的旧价与涨跌
// 市场创建时间晚于回看时刻的周期直接记 nil，不做历史查询；创建时间未知则假定市场一直存在
// 容差窗口内没有快照记 nil（历史不足），不视为错误
func (e *ChangeEngine) ComputeChanges(ctx context.Context, m *model.Market, referenceTime time.Time) *model.PriceChanges {
	changes := &model.PriceChanges{}
	changes.Price1DayAgo, changes.PriceChange1Day = e.computePeriod(ctx, m, referenceTime, lookback1Day)
	changes.Price1WeekAgo, changes.PriceChange1Week = e.computePeriod(ctx, m, referenceTime, lookback1Week)
	changes.Price1MonthAgo, changes.PriceChange1Month = e.computePeriod(ctx, m, referenceTime, lookback1Month)
	return changes
}

func (e *ChangeEngine) computePeriod(ctx context.Context, m *model.Market, referenceTime time.Time, lookback time.Duration) (*float64, *int) {
	target := referenceTime.Add(-lookback)

	// 市场当时不存在则无旧价可言
	if m.CreationDate != nil && m.CreationDate.After(target) {
		return nil, nil
	}

	snap, err := e.history.FindNearest(ctx, m.Source, m.MarketID, target, toleranceWindow)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"source":    m.Source,
			"market_id": m.MarketID,
		}).Warn("历史快照查询出错，该周期按历史不足处理")
		return nil, nil
	}
	if snap == nil {
		return nil, nil
	}

	prior := snap.Price
	change := int(math.Round(float64(m.CurrentPrice) - prior))
	return &prior, &change
}

// ComputeChangesBatch 批量计算并填充到各市场的内存副本，每批10个并发
func (e *ChangeEngine) ComputeChangesBatch(ctx context.Context, markets []*model.Market, referenceTime time.Time) {
	for start := 0; start < len(markets); start += changeBatchSize {
		end := start + changeBatchSize
		if end > len(markets) {
			end = len(markets)
		}

		var wg sync.WaitGroup
		for _, m := range markets[start:end] {
			wg.Add(1)
			go func(m *model.Market) {
				defer wg.Done()
				e.ComputeChanges(ctx, m, referenceTime).ApplyTo(m)
			}(m)
		}
		wg.Wait()
	}
}
