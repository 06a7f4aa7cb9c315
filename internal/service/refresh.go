package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"MoverSync/internal/interfaces"
	"MoverSync/internal/model"
	"MoverSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrRefreshInProgress 已有刷新在执行时，后来的调用直接拒绝
// 避免并发刷新向历史表重复追加快照
var ErrRefreshInProgress = errors.New("已有刷新任务在执行中")

// SourceSummary 单来源的刷新结果
type SourceSummary struct {
	Updated int `json:"updated"`
	Added   int `json:"added"`
	Errors  int `json:"errors"`
}

// RefreshSummary 一轮刷新的汇总
type RefreshSummary struct {
	RunID        string                          `json:"run_id"`
	PerSource    map[model.Source]*SourceSummary `json:"per_source"`
	TotalUpdated int                             `json:"total_updated"`
	TotalAdded   int                             `json:"total_added"`
	TotalErrors  int                             `json:"total_errors"`
	Timestamp    time.Time                       `json:"timestamp"`
}

// RefreshService 刷新编排：并发拉取各来源，快照旧价后批量落库
// 单来源失败降级为该来源空结果+错误计数，绝不拖垮其他来源
type RefreshService struct {
	markets   repository.MarketRepository
	history   repository.HistoryRepository
	adapters  map[model.Source]interfaces.SourceAdapter
	chunkSize int
	logger    *logrus.Logger
	running   atomic.Bool
}

// NewRefreshService 创建刷新服务
func NewRefreshService(
	markets repository.MarketRepository,
	history repository.HistoryRepository,
	adapters map[model.Source]interfaces.SourceAdapter,
	chunkSize int,
	logger *logrus.Logger,
) *RefreshService {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	return &RefreshService{
		markets:   markets,
		history:   history,
		adapters:  adapters,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

type fetchResult struct {
	source  model.Source
	markets []*model.NormalizedMarket
	err     error
}

// RefreshAll 刷新全部来源并返回汇总；上游全部不可达时也返回汇总而非报错
func (s *RefreshService) RefreshAll(ctx context.Context) (*RefreshSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRefreshInProgress
	}
	defer s.running.Store(false)

	// 参考时刻在编排开始时取一次，各来源共用，保证快照时间一致
	referenceTime := time.Now().UTC()
	summary := &RefreshSummary{
		RunID:     uuid.NewString(),
		PerSource: make(map[model.Source]*SourceSummary, len(s.adapters)),
		Timestamp: referenceTime,
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":  summary.RunID,
		"sources": len(s.adapters),
	}).Info("开始刷新全部来源")

	// 三个来源并发拉取，各自的失败单独捕获
	results := make(chan fetchResult, len(s.adapters))
	var wg sync.WaitGroup
	for src, ad := range s.adapters {
		wg.Add(1)
		go func(src model.Source, ad interfaces.SourceAdapter) {
			defer wg.Done()
			ms, err := ad.FetchMarkets(ctx)
			results <- fetchResult{source: src, markets: ms, err: err}
		}(src, ad)
	}
	wg.Wait()
	close(results)

	for res := range results {
		srcSummary := &SourceSummary{}
		summary.PerSource[res.source] = srcSummary

		if res.err != nil {
			s.logger.WithError(res.err).WithField("source", res.source).
				Error("来源拉取失败，本轮按空结果降级")
			srcSummary.Errors++
			continue
		}
		s.processSource(ctx, res.source, res.markets, referenceTime, srcSummary)
	}

	for _, ss := range summary.PerSource {
		summary.TotalUpdated += ss.Updated
		summary.TotalAdded += ss.Added
		summary.TotalErrors += ss.Errors
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":  summary.RunID,
		"updated": summary.TotalUpdated,
		"added":   summary.TotalAdded,
		"errors":  summary.TotalErrors,
	}).Info("刷新完成")
	return summary, nil
}

// processSource 单来源入库：按块处理，块级失败计数后继续后续块
func (s *RefreshService) processSource(ctx context.Context, source model.Source, markets []*model.NormalizedMarket, referenceTime time.Time, out *SourceSummary) {
	for start := 0; start < len(markets); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(markets) {
			end = len(markets)
		}
		s.processChunk(ctx, source, markets[start:end], referenceTime, out)
	}
}

func (s *RefreshService) processChunk(ctx context.Context, source model.Source, chunk []*model.NormalizedMarket, referenceTime time.Time, out *SourceSummary) {
	ids := make([]string, 0, len(chunk))
	for _, nm := range chunk {
		ids = append(ids, nm.MarketID)
	}

	existing, err := s.markets.GetByMarketIDs(ctx, source, ids)
	if err != nil {
		s.logger.WithError(err).WithField("source", source).Error("查询存量市场失败，跳过该块")
		out.Errors += len(chunk)
		return
	}

	// 已存在的市场先快照覆盖前的旧价，时间戳取本轮参考时刻；新市场无快照可记
	var snapshots []*model.HistoricalPrice
	for _, nm := range chunk {
		if old, ok := existing[nm.MarketID]; ok {
			snapshots = append(snapshots, &model.HistoricalPrice{
				MarketID:  nm.MarketID,
				Source:    source,
				Price:     float64(old.CurrentPrice),
				Timestamp: referenceTime,
			})
		}
	}
	histResult := s.history.InsertBatch(ctx, snapshots)
	for _, f := range histResult.Failures {
		s.logger.WithError(f.Err).WithField("key", f.Key).Warn("历史快照写入失败")
	}
	out.Errors += histResult.FailedCount()

	rows := make([]*model.Market, 0, len(chunk))
	for _, nm := range chunk {
		rows = append(rows, toRow(nm, referenceTime))
	}
	upsertResult := s.markets.UpsertBatch(ctx, rows)
	for _, f := range upsertResult.Failures {
		s.logger.WithError(f.Err).WithField("key", f.Key).Warn("市场写入失败")
	}
	out.Errors += upsertResult.FailedCount()

	// 成功条目按是否已存在逐条拆分为 updated/added
	failedKeys := make(map[string]bool, len(upsertResult.Failures))
	for _, f := range upsertResult.Failures {
		failedKeys[f.Key] = true
	}
	for _, nm := range chunk {
		if failedKeys[string(source)+"/"+nm.MarketID] {
			continue
		}
		if _, ok := existing[nm.MarketID]; ok {
			out.Updated++
		} else {
			out.Added++
		}
	}
}

// toRow 规范化记录转为市场行；派生涨跌字段与排除字段不在此处赋值
func toRow(nm *model.NormalizedMarket, referenceTime time.Time) *model.Market {
	return &model.Market{
		MarketID:       nm.MarketID,
		Source:         nm.Source,
		MarketName:     nm.MarketName,
		EventName:      nm.EventName,
		MarketURL:      nm.MarketURL,
		EventURL:       nm.EventURL,
		Description:    nm.Description,
		CreationDate:   nm.CreationDate,
		ResolutionDate: nm.ResolutionDate,
		CurrentPrice:   nm.CurrentPrice,
		Category:       nm.Category,
		SourceTags:     nm.SourceTags,
		LastUpdated:    referenceTime,
	}
}
