package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"MoverSync/internal/config"
	"MoverSync/internal/filter"
	"MoverSync/internal/interfaces"
	"MoverSync/internal/model"
	"MoverSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const (
	defaultPageLimit  = 1000
	defaultMaxRecords = 10000 // 分页安全上限
	enrichConcurrency = 5     // 事件名称补充的并发窗口
	marketURLPrefix   = "https://kalshi.com/markets/"
)

// tickerSportsKeywords ticker 子串粗筛，命中即跳过，省掉一次通用过滤
var tickerSportsKeywords = []string{
	"NBA", "NFL", "MLB", "NHL", "NCAA", "UFC",
	"TENNIS", "SOCCER", "GOLF", "NASCAR",
}

type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewKalshiAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

func (k *Adapter) GetName() string {
	return "Kalshi"
}

func (k *Adapter) GetSource() model.Source {
	return model.SourceKalshi
}

// FetchMarkets 按游标分页拉取全部开放市场，补充事件名称后规范化并过滤
func (k *Adapter) FetchMarkets(ctx context.Context) ([]*model.NormalizedMarket, error) {
	raw, err := k.fetchAllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取Kalshi市场失败: %w", err)
	}

	// ticker 粗筛，剩余候选再走通用过滤
	candidates := make([]model.KalshiMarket, 0, len(raw))
	for _, m := range raw {
		if k.tickerLooksLikeSports(m.Ticker) {
			continue
		}
		candidates = append(candidates, m)
	}

	eventTitles := k.fetchEventTitles(ctx, candidates)

	var out []*model.NormalizedMarket
	for _, m := range candidates {
		eventName := eventTitles[m.EventTicker]
		if eventName == "" {
			eventName = m.EventTicker // 查询失败时退回原始标识
		}
		if filter.ShouldExclude(m.Title, m.RulesPrimary, m.Category) {
			continue
		}
		out = append(out, k.normalize(m, eventName))
	}

	k.logger.Infof("Kalshi同步完成：原始%d条，规范化保留%d条", len(raw), len(out))
	return out, nil
}

// fetchAllPages 游标分页直至游标为空；超过安全上限时告警并截断
func (k *Adapter) fetchAllPages(ctx context.Context) ([]model.KalshiMarket, error) {
	limit := k.cfg.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	maxRecords := k.cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	var all []model.KalshiMarket
	cursor := ""
	for {
		query := url.Values{}
		query.Set("limit", fmt.Sprintf("%d", limit))
		query.Set("status", "open")
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var resp model.KalshiMarketsResponse
		reqURL := strings.TrimSuffix(k.cfg.BaseURL, "/") + "/markets?" + query.Encode()
		if err := httpclient.GetJSON(ctx, k.httpClient, reqURL, k.authHeader(), &resp, k.cfg.RetryCount, k.logger); err != nil {
			return nil, err
		}

		all = append(all, resp.Markets...)
		if len(all) >= maxRecords {
			k.logger.Warnf("Kalshi分页达到安全上限%d条，提前终止（cursor=%q）", maxRecords, resp.Cursor)
			break
		}
		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}
	return all, nil
}

// fetchEventTitles 批量补充事件名称，每批5个并发
// 单个事件查询失败不拖垮整个适配器，只回退到原始 ticker
func (k *Adapter) fetchEventTitles(ctx context.Context, markets []model.KalshiMarket) map[string]string {
	seen := make(map[string]bool)
	var tickers []string
	for _, m := range markets {
		if m.EventTicker != "" && !seen[m.EventTicker] {
			seen[m.EventTicker] = true
			tickers = append(tickers, m.EventTicker)
		}
	}

	titles := make(map[string]string, len(tickers))
	var mu sync.Mutex

	for start := 0; start < len(tickers); start += enrichConcurrency {
		end := start + enrichConcurrency
		if end > len(tickers) {
			end = len(tickers)
		}

		var wg sync.WaitGroup
		for _, ticker := range tickers[start:end] {
			wg.Add(1)
			go func(ticker string) {
				defer wg.Done()
				var resp model.KalshiEventResponse
				reqURL := strings.TrimSuffix(k.cfg.BaseURL, "/") + "/events/" + url.PathEscape(ticker)
				if err := httpclient.GetJSON(ctx, k.httpClient, reqURL, k.authHeader(), &resp, k.cfg.RetryCount, k.logger); err != nil {
					k.logger.WithError(err).Warnf("补充Kalshi事件%s名称失败，回退原始ticker", ticker)
					return
				}
				mu.Lock()
				titles[ticker] = resp.Event.Title
				mu.Unlock()
			}(ticker)
		}
		wg.Wait()
	}
	return titles
}

func (k *Adapter) normalize(m model.KalshiMarket, eventName string) *model.NormalizedMarket {
	name := m.Title
	if m.Subtitle != "" {
		name = m.Title + " — " + m.Subtitle
	}
	return &model.NormalizedMarket{
		MarketID:       m.Ticker,
		Source:         model.SourceKalshi,
		MarketName:     name,
		EventName:      eventName,
		MarketURL:      marketURLPrefix + strings.ToLower(m.EventTicker),
		EventURL:       marketURLPrefix + strings.ToLower(m.EventTicker),
		Description:    m.RulesPrimary,
		CreationDate:   parseTime(m.OpenTime),
		ResolutionDate: parseTime(m.CloseTime),
		CurrentPrice:   k.normalizePrice(m),
		Category:       m.Category,
		SourceTags:     buildTags(m.Category, m.EventTicker),
	}
}

// normalizePrice Kalshi价格本身就是整数美分（0-100），直接透传并夹取
// 无成交价时取买卖中间价，完全缺失时兜底50
func (k *Adapter) normalizePrice(m model.KalshiMarket) int {
	price := m.LastPrice
	if price == 0 {
		if m.YesBid > 0 || m.YesAsk > 0 {
			price = (m.YesBid + m.YesAsk) / 2
		} else {
			price = 50
		}
	}
	if price < 0 {
		price = 0
	}
	if price > 100 {
		price = 100
	}
	return price
}

func (k *Adapter) tickerLooksLikeSports(ticker string) bool {
	upper := strings.ToUpper(ticker)
	for _, kw := range tickerSportsKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func (k *Adapter) authHeader() http.Header {
	if k.cfg.AuthKey == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+k.cfg.AuthKey)
	return h
}

func buildTags(tags ...string) datatypes.JSON {
	var nonEmpty []string
	for _, t := range tags {
		if t != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	b, err := json.Marshal(nonEmpty)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return b
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
