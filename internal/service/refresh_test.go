package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"MoverSync/internal/interfaces"
	"MoverSync/internal/model"
)

func TestRefreshAllNewMarket(t *testing.T) {
	repo := newFakeMarketRepo()
	history := newFakeHistoryRepo()

	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourceKalshi: &fakeAdapter{
			name:   "Kalshi",
			source: model.SourceKalshi,
			markets: []*model.NormalizedMarket{
				{MarketID: "new-1", Source: model.SourceKalshi, MarketName: "Brand new market", CurrentPrice: 62},
			},
		},
	}

	svc := NewRefreshService(repo, history, adapters, 500, testLogger())
	summary, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	if summary.TotalAdded != 1 || summary.TotalUpdated != 0 || summary.TotalErrors != 0 {
		t.Errorf("汇总 = added %d, updated %d, errors %d, want 1/0/0",
			summary.TotalAdded, summary.TotalUpdated, summary.TotalErrors)
	}
	// 新市场没有旧价可快照
	if n := history.countFor(model.SourceKalshi, "new-1"); n != 0 {
		t.Errorf("新市场的历史快照数 = %d, want 0", n)
	}

	stored, err := repo.GetByKey(context.Background(), model.SourceKalshi, "new-1")
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if stored.CurrentPrice != 62 {
		t.Errorf("入库价格 = %d, want 62", stored.CurrentPrice)
	}
	if !stored.LastUpdated.Equal(summary.Timestamp) {
		t.Errorf("LastUpdated = %v, want 参考时刻 %v", stored.LastUpdated, summary.Timestamp)
	}
}

func TestRefreshAllSnapshotsExistingMarket(t *testing.T) {
	repo := newFakeMarketRepo()
	history := newFakeHistoryRepo()

	repo.put(&model.Market{
		MarketID: "existing-1", Source: model.SourcePolymarket,
		MarketName: "Existing market", CurrentPrice: 40,
		LastUpdated: time.Now().UTC().Add(-24 * time.Hour),
	})

	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourcePolymarket: &fakeAdapter{
			name:   "Polymarket",
			source: model.SourcePolymarket,
			markets: []*model.NormalizedMarket{
				{MarketID: "existing-1", Source: model.SourcePolymarket, MarketName: "Existing market", CurrentPrice: 70},
			},
		},
	}

	svc := NewRefreshService(repo, history, adapters, 500, testLogger())
	summary, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	if summary.TotalUpdated != 1 || summary.TotalAdded != 0 {
		t.Errorf("汇总 = updated %d, added %d, want 1/0", summary.TotalUpdated, summary.TotalAdded)
	}

	// 恰好一条快照，记录覆盖前的旧价，时间戳为本轮参考时刻
	if n := history.countFor(model.SourcePolymarket, "existing-1"); n != 1 {
		t.Fatalf("历史快照数 = %d, want 1", n)
	}
	snap, err := history.FindNearest(context.Background(), model.SourcePolymarket, "existing-1", summary.Timestamp, time.Minute)
	if err != nil || snap == nil {
		t.Fatalf("FindNearest() = %v, %v", snap, err)
	}
	if snap.Price != 40 {
		t.Errorf("快照价格 = %v, want 覆盖前的40", snap.Price)
	}

	stored, _ := repo.GetByKey(context.Background(), model.SourcePolymarket, "existing-1")
	if stored.CurrentPrice != 70 {
		t.Errorf("入库价格 = %d, want 70", stored.CurrentPrice)
	}
}

func TestRefreshAllPartialFailure(t *testing.T) {
	repo := newFakeMarketRepo()
	history := newFakeHistoryRepo()

	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourceKalshi: &fakeAdapter{
			name: "Kalshi", source: model.SourceKalshi,
			markets: []*model.NormalizedMarket{
				{MarketID: "k1", Source: model.SourceKalshi, MarketName: "Kalshi market", CurrentPrice: 30},
			},
		},
		model.SourcePolymarket: &fakeAdapter{
			name: "Polymarket", source: model.SourcePolymarket,
			err: errors.New("gamma api unavailable"),
		},
		model.SourceManifold: &fakeAdapter{
			name: "Manifold", source: model.SourceManifold,
			markets: []*model.NormalizedMarket{
				{MarketID: "mf1", Source: model.SourceManifold, MarketName: "Manifold market", CurrentPrice: 55},
			},
		},
	}

	svc := NewRefreshService(repo, history, adapters, 500, testLogger())
	summary, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("单来源失败不应让整轮报错, error = %v", err)
	}

	if summary.PerSource[model.SourcePolymarket].Errors != 1 {
		t.Errorf("Polymarket错误计数 = %d, want 1", summary.PerSource[model.SourcePolymarket].Errors)
	}
	if summary.PerSource[model.SourceKalshi].Added != 1 {
		t.Errorf("Kalshi新增 = %d, want 1", summary.PerSource[model.SourceKalshi].Added)
	}
	if summary.PerSource[model.SourceManifold].Added != 1 {
		t.Errorf("Manifold新增 = %d, want 1", summary.PerSource[model.SourceManifold].Added)
	}
	if summary.TotalAdded != 2 || summary.TotalErrors != 1 {
		t.Errorf("汇总 = added %d, errors %d, want 2/1", summary.TotalAdded, summary.TotalErrors)
	}
}

func TestRefreshAllPartialUpsertFailure(t *testing.T) {
	repo := newFakeMarketRepo()
	history := newFakeHistoryRepo()

	// bad-row 已存在且本轮写入失败；good-row 是新市场且写入成功
	repo.put(&model.Market{
		MarketID: "bad-row", Source: model.SourceKalshi,
		MarketName: "Existing market", CurrentPrice: 40,
	})
	repo.upsertFailKeys = map[string]error{
		key(model.SourceKalshi, "bad-row"): errors.New("value too long for column"),
	}

	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourceKalshi: &fakeAdapter{
			name: "Kalshi", source: model.SourceKalshi,
			markets: []*model.NormalizedMarket{
				{MarketID: "bad-row", Source: model.SourceKalshi, MarketName: "Existing market", CurrentPrice: 70},
				{MarketID: "good-row", Source: model.SourceKalshi, MarketName: "New market", CurrentPrice: 55},
			},
		},
	}

	svc := NewRefreshService(repo, history, adapters, 500, testLogger())
	summary, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("单行写入失败不应让整轮报错, error = %v", err)
	}

	// 失败行计入错误，不计入 updated/added；成功行照常入账
	ss := summary.PerSource[model.SourceKalshi]
	if ss.Errors != 1 || ss.Updated != 0 || ss.Added != 1 {
		t.Errorf("来源汇总 = errors %d, updated %d, added %d, want 1/0/1", ss.Errors, ss.Updated, ss.Added)
	}

	// 快照在写入前完成，失败行的旧价仍被记录
	if n := history.countFor(model.SourceKalshi, "bad-row"); n != 1 {
		t.Errorf("bad-row快照数 = %d, want 1", n)
	}

	// 失败行的存量数据不被污染
	stored, err := repo.GetByKey(context.Background(), model.SourceKalshi, "bad-row")
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if stored.CurrentPrice != 40 {
		t.Errorf("失败行价格 = %d, want 原值40", stored.CurrentPrice)
	}
	if _, err := repo.GetByKey(context.Background(), model.SourceKalshi, "good-row"); err != nil {
		t.Errorf("成功行应已入库, error = %v", err)
	}
}

func TestRefreshAllSnapshotInsertFailure(t *testing.T) {
	repo := newFakeMarketRepo()
	history := newFakeHistoryRepo()

	repo.put(&model.Market{
		MarketID: "snap-fail", Source: model.SourceManifold,
		MarketName: "Existing market", CurrentPrice: 30,
	})
	history.insertFailKeys = map[string]error{
		key(model.SourceManifold, "snap-fail"): errors.New("connection reset"),
	}

	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourceManifold: &fakeAdapter{
			name: "Manifold", source: model.SourceManifold,
			markets: []*model.NormalizedMarket{
				{MarketID: "snap-fail", Source: model.SourceManifold, MarketName: "Existing market", CurrentPrice: 45},
			},
		},
	}

	svc := NewRefreshService(repo, history, adapters, 500, testLogger())
	summary, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("快照写入失败不应让整轮报错, error = %v", err)
	}

	// 快照失败计入错误，市场本身仍正常更新
	ss := summary.PerSource[model.SourceManifold]
	if ss.Errors != 1 || ss.Updated != 1 {
		t.Errorf("来源汇总 = errors %d, updated %d, want 1/1", ss.Errors, ss.Updated)
	}
	stored, _ := repo.GetByKey(context.Background(), model.SourceManifold, "snap-fail")
	if stored.CurrentPrice != 45 {
		t.Errorf("入库价格 = %d, want 45", stored.CurrentPrice)
	}
}

func TestRefreshAllLookupFailure(t *testing.T) {
	repo := newFakeMarketRepo()
	repo.lookupErr = errors.New("database is down")
	history := newFakeHistoryRepo()

	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourceKalshi: &fakeAdapter{
			name: "Kalshi", source: model.SourceKalshi,
			markets: []*model.NormalizedMarket{
				{MarketID: "a", Source: model.SourceKalshi, MarketName: "Market a", CurrentPrice: 50},
				{MarketID: "b", Source: model.SourceKalshi, MarketName: "Market b", CurrentPrice: 50},
				{MarketID: "c", Source: model.SourceKalshi, MarketName: "Market c", CurrentPrice: 50},
			},
		},
	}

	svc := NewRefreshService(repo, history, adapters, 500, testLogger())
	summary, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("存量查询失败不应让整轮报错, error = %v", err)
	}

	// 整块按条数计入错误并跳过，不产生任何写入
	ss := summary.PerSource[model.SourceKalshi]
	if ss.Errors != 3 || ss.Updated != 0 || ss.Added != 0 {
		t.Errorf("来源汇总 = errors %d, updated %d, added %d, want 3/0/0", ss.Errors, ss.Updated, ss.Added)
	}
	if n := history.countFor(model.SourceKalshi, "a"); n != 0 {
		t.Errorf("跳过的块不应产生快照, got %d", n)
	}
}

func TestRefreshAllSingleFlight(t *testing.T) {
	repo := newFakeMarketRepo()
	history := newFakeHistoryRepo()

	block := make(chan struct{})
	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourceKalshi: &fakeAdapter{name: "Kalshi", source: model.SourceKalshi, block: block},
	}

	svc := NewRefreshService(repo, history, adapters, 500, testLogger())

	done := make(chan error, 1)
	go func() {
		_, err := svc.RefreshAll(context.Background())
		done <- err
	}()

	// 等待首轮占住执行权
	deadline := time.After(2 * time.Second)
	for !svc.running.Load() {
		select {
		case <-deadline:
			t.Fatal("首轮刷新未能进入执行态")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, err := svc.RefreshAll(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("并发刷新 error = %v, want ErrRefreshInProgress", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Errorf("首轮刷新 error = %v", err)
	}

	// 首轮结束后可再次触发
	if _, err := svc.RefreshAll(context.Background()); err != nil {
		t.Errorf("释放后再次刷新 error = %v", err)
	}
}

func TestRefreshAllChunking(t *testing.T) {
	repo := newFakeMarketRepo()
	history := newFakeHistoryRepo()

	var markets []*model.NormalizedMarket
	for i := 0; i < 7; i++ {
		markets = append(markets, &model.NormalizedMarket{
			MarketID: string(rune('a' + i)), Source: model.SourceKalshi,
			MarketName: "chunked", CurrentPrice: 50,
		})
	}
	adapters := map[model.Source]interfaces.SourceAdapter{
		model.SourceKalshi: &fakeAdapter{name: "Kalshi", source: model.SourceKalshi, markets: markets},
	}

	// 块大小3：7条分3块处理，结果与一次性处理一致
	svc := NewRefreshService(repo, history, adapters, 3, testLogger())
	summary, err := svc.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if summary.TotalAdded != 7 || summary.TotalErrors != 0 {
		t.Errorf("汇总 = added %d, errors %d, want 7/0", summary.TotalAdded, summary.TotalErrors)
	}
	all, _ := repo.ListNotExcluded(context.Background())
	if len(all) != 7 {
		t.Errorf("入库市场数 = %d, want 7", len(all))
	}
}
