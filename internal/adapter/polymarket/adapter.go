package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
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
	defaultPageLimit = 100
	defaultMaxEvents = 5000 // 分页安全上限（事件数）
	eventURLPrefix   = "https://polymarket.com/event/"
)

type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewPolymarketAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

func (p *Adapter) GetName() string {
	return "Polymarket"
}

func (p *Adapter) GetSource() model.Source {
	return model.SourcePolymarket
}

// FetchMarkets 按偏移量分页拉取Gamma活跃事件，展开事件下的市场并规范化
func (p *Adapter) FetchMarkets(ctx context.Context) ([]*model.NormalizedMarket, error) {
	events, err := p.fetchAllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取Polymarket事件失败: %w", err)
	}

	var out []*model.NormalizedMarket
	for _, e := range events {
		for _, m := range e.Markets {
			if filter.ShouldExclude(m.Question, m.Description, e.Category) {
				continue
			}
			out = append(out, p.normalize(e, m))
		}
	}

	p.logger.Infof("Polymarket同步完成：事件%d个，规范化保留%d条市场", len(events), len(out))
	return out, nil
}

// fetchAllEvents 偏移量分页：短页即视为拉取完毕；超过安全上限时告警终止
func (p *Adapter) fetchAllEvents(ctx context.Context) ([]model.GammaEvent, error) {
	limit := p.cfg.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	maxEvents := p.cfg.MaxRecords
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}

	var all []model.GammaEvent
	offset := 0
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		query.Set("offset", strconv.Itoa(offset))
		query.Set("active", "true")
		query.Set("closed", "false")

		var page []model.GammaEvent
		reqURL := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/events?" + query.Encode()
		if err := httpclient.GetJSON(ctx, p.httpClient, reqURL, nil, &page, p.cfg.RetryCount, p.logger); err != nil {
			return nil, err
		}

		all = append(all, page...)
		if len(all) >= maxEvents {
			p.logger.Warnf("Polymarket分页达到安全上限%d个事件，提前终止", maxEvents)
			break
		}
		if len(page) < limit {
			break
		}
		offset += limit
	}
	return all, nil
}

func (p *Adapter) normalize(e model.GammaEvent, m model.GammaMarket) *model.NormalizedMarket {
	description := m.Description
	if description == "" {
		description = e.Description
	}
	return &model.NormalizedMarket{
		MarketID:       m.ID,
		Source:         model.SourcePolymarket,
		MarketName:     m.Question,
		EventName:      e.Title,
		MarketURL:      eventURLPrefix + e.Slug,
		EventURL:       eventURLPrefix + e.Slug,
		Description:    description,
		CreationDate:   parseTime(firstNonEmpty(m.CreatedAt, e.CreatedAt)),
		ResolutionDate: parseTime(firstNonEmpty(m.EndDate, e.EndDate)),
		CurrentPrice:   p.normalizePrice(m),
		Category:       e.Category,
		SourceTags:     buildTags(e.Category, e.Slug),
	}
}

// normalizePrice 解析伪JSON数组字符串形式的结果与价格
// 取"Yes"结果的价格（[0,1]小数字符串），×100四舍五入；无Yes则取第一个结果，解析失败兜底50
func (p *Adapter) normalizePrice(m model.GammaMarket) int {
	outcomes, err := parseJSONArrayString(m.Outcomes)
	if err != nil {
		p.logger.Warnf("解析市场%s的Outcomes失败: %v，价格兜底50", m.ID, err)
		return 50
	}
	prices, err := parseJSONArrayString(m.OutcomePrices)
	if err != nil || len(prices) == 0 {
		p.logger.Warnf("解析市场%s的OutcomePrices失败: %v，价格兜底50", m.ID, err)
		return 50
	}

	idx := 0
	for i, o := range outcomes {
		if strings.EqualFold(o, "yes") && i < len(prices) {
			idx = i
			break
		}
	}
	if idx >= len(prices) {
		idx = 0
	}

	v, err := strconv.ParseFloat(prices[idx], 64)
	if err != nil {
		p.logger.Warnf("转换市场%s价格%q失败: %v，兜底50", m.ID, prices[idx], err)
		return 50
	}
	price := int(math.Round(v * 100))
	if price < 0 {
		price = 0
	}
	if price > 100 {
		price = 100
	}
	return price
}

// parseJSONArrayString 解析伪JSON数组字符串
func parseJSONArrayString(s string) ([]string, error) {
	if s == "" || s == "null" {
		return []string{}, nil
	}
	var res []string
	if err := json.Unmarshal([]byte(s), &res); err != nil {
		return nil, err
	}
	return res, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
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
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
