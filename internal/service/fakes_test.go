package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MoverSync/internal/interfaces"
	"MoverSync/internal/model"
	"MoverSync/internal/repository"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func key(source model.Source, marketID string) string {
	return string(source) + "/" + marketID
}

// fakeMarketRepo 内存实现的市场仓储
// upsertFailKeys 指定的键在 UpsertBatch 中按逐条失败返回；lookupErr 非nil时 GetByMarketIDs 整体失败
type fakeMarketRepo struct {
	mu             sync.Mutex
	store          map[string]*model.Market
	upsertFailKeys map[string]error
	lookupErr      error
}

func newFakeMarketRepo() *fakeMarketRepo {
	return &fakeMarketRepo{store: map[string]*model.Market{}}
}

func (f *fakeMarketRepo) put(m *model.Market) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.store[key(m.Source, m.MarketID)] = &cp
}

func (f *fakeMarketRepo) GetByMarketIDs(ctx context.Context, source model.Source, marketIDs []string) (map[string]*model.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := map[string]*model.Market{}
	for _, id := range marketIDs {
		if m, ok := f.store[key(source, id)]; ok {
			cp := *m
			out[id] = &cp
		}
	}
	return out, nil
}

func (f *fakeMarketRepo) UpsertBatch(ctx context.Context, markets []*model.Market) repository.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result repository.BatchResult
	for _, m := range markets {
		k := key(m.Source, m.MarketID)
		if err, ok := f.upsertFailKeys[k]; ok {
			result.Failures = append(result.Failures, repository.ItemFailure{Key: k, Err: err})
			continue
		}
		cp := *m
		f.store[k] = &cp
		result.Succeeded++
	}
	return result
}

func (f *fakeMarketRepo) GetByKey(ctx context.Context, source model.Source, marketID string) (*model.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.store[key(source, marketID)]
	if !ok {
		return nil, fmt.Errorf("市场%s/%s不存在", source, marketID)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMarketRepo) ListNotExcluded(ctx context.Context) ([]*model.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Market
	for _, m := range f.store {
		if m.IsExcluded {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i].Source, out[i].MarketID) < key(out[j].Source, out[j].MarketID) })
	return out, nil
}

func (f *fakeMarketRepo) ListRecentlyUpdated(ctx context.Context, limit int) ([]*model.Market, error) {
	all, _ := f.ListNotExcluded(ctx)
	sort.Slice(all, func(i, j int) bool { return all[i].LastUpdated.After(all[j].LastUpdated) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// fakeHistoryRepo 内存实现的历史快照仓储
// insertFailKeys 指定的键在 InsertBatch 中按逐条失败返回
type fakeHistoryRepo struct {
	mu             sync.Mutex
	rows           []*model.HistoricalPrice
	insertFailKeys map[string]error
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{}
}

func (f *fakeHistoryRepo) add(source model.Source, marketID string, price float64, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, &model.HistoricalPrice{
		MarketID:  marketID,
		Source:    source,
		Price:     price,
		Timestamp: ts,
	})
}

func (f *fakeHistoryRepo) InsertBatch(ctx context.Context, rows []*model.HistoricalPrice) repository.BatchResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result repository.BatchResult
	for _, r := range rows {
		k := key(r.Source, r.MarketID)
		if err, ok := f.insertFailKeys[k]; ok {
			result.Failures = append(result.Failures, repository.ItemFailure{Key: k, Err: err})
			continue
		}
		f.rows = append(f.rows, r)
		result.Succeeded++
	}
	return result
}

func (f *fakeHistoryRepo) FindNearest(ctx context.Context, source model.Source, marketID string, target time.Time, tolerance time.Duration) (*model.HistoricalPrice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.HistoricalPrice
	lo, hi := target.Add(-tolerance), target.Add(tolerance)
	for _, r := range f.rows {
		if r.Source != source || r.MarketID != marketID {
			continue
		}
		if r.Timestamp.Before(lo) || r.Timestamp.After(hi) {
			continue
		}
		if best == nil || r.Timestamp.After(best.Timestamp) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

func (f *fakeHistoryRepo) countFor(source model.Source, marketID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.Source == source && r.MarketID == marketID {
			n++
		}
	}
	return n
}

// fakeAdapter 固定返回值的来源适配器
type fakeAdapter struct {
	name    string
	source  model.Source
	markets []*model.NormalizedMarket
	err     error
	block   chan struct{} // 非nil时FetchMarkets阻塞直到关闭
}

var _ interfaces.SourceAdapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) GetName() string         { return f.name }
func (f *fakeAdapter) GetSource() model.Source { return f.source }

func (f *fakeAdapter) FetchMarkets(ctx context.Context) ([]*model.NormalizedMarket, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}
