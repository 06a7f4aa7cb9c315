package manifold

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
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
	enrichConcurrency = 5     // 分组名称补充的并发窗口
)

type Adapter struct {
	cfg        *config.SourceConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewManifoldAdapter(cfg *config.SourceConfig, logger *logrus.Logger) interfaces.SourceAdapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: httpclient.NewHTTPClient(cfg, logger),
		logger:     logger,
	}
}

func (m *Adapter) GetName() string {
	return "Manifold"
}

func (m *Adapter) GetSource() model.Source {
	return model.SourceManifold
}

// FetchMarkets 以 before 指针向前翻页拉取全部市场，按分组名称补充事件维度后规范化
func (m *Adapter) FetchMarkets(ctx context.Context) ([]*model.NormalizedMarket, error) {
	raw, err := m.fetchAllPages(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取Manifold市场失败: %w", err)
	}

	// 只处理二元市场，多选/数值市场没有单一概率可规范化
	candidates := make([]model.ManifoldMarket, 0, len(raw))
	for _, mk := range raw {
		if mk.IsResolved {
			continue
		}
		if mk.OutcomeType != "" && mk.OutcomeType != "BINARY" {
			continue
		}
		candidates = append(candidates, mk)
	}

	groupNames := m.fetchGroupNames(ctx, candidates)

	var out []*model.NormalizedMarket
	for _, mk := range candidates {
		description := decodeDescription(mk.Description)
		category := firstGroup(mk.GroupSlugs)
		if name, ok := groupNames[category]; ok && name != "" {
			category = name
		}
		if filter.ShouldExclude(mk.Question, description, category) {
			continue
		}
		out = append(out, m.normalize(mk, description, category))
	}

	m.logger.Infof("Manifold同步完成：原始%d条，规范化保留%d条", len(raw), len(out))
	return out, nil
}

// fetchAllPages before 指针分页：以上一页最后一条的 id 作为下一页的 before；短页即结束
func (m *Adapter) fetchAllPages(ctx context.Context) ([]model.ManifoldMarket, error) {
	limit := m.cfg.PageLimit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	maxRecords := m.cfg.MaxRecords
	if maxRecords <= 0 {
		maxRecords = defaultMaxRecords
	}

	var all []model.ManifoldMarket
	before := ""
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		if before != "" {
			query.Set("before", before)
		}

		var page []model.ManifoldMarket
		reqURL := strings.TrimSuffix(m.cfg.BaseURL, "/") + "/v0/markets?" + query.Encode()
		if err := httpclient.GetJSON(ctx, m.httpClient, reqURL, nil, &page, m.cfg.RetryCount, m.logger); err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		if len(all) >= maxRecords {
			m.logger.Warnf("Manifold分页达到安全上限%d条，提前终止", maxRecords)
			break
		}
		if len(page) < limit {
			break
		}
		before = page[len(page)-1].ID
	}
	return all, nil
}

// fetchGroupNames 批量把分组 slug 换成可读名称，每批5个并发
// 单个分组查询失败只回退 slug，不影响其他分组
func (m *Adapter) fetchGroupNames(ctx context.Context, markets []model.ManifoldMarket) map[string]string {
	seen := make(map[string]bool)
	var slugs []string
	for _, mk := range markets {
		slug := firstGroup(mk.GroupSlugs)
		if slug != "" && !seen[slug] {
			seen[slug] = true
			slugs = append(slugs, slug)
		}
	}

	names := make(map[string]string, len(slugs))
	var mu sync.Mutex

	for start := 0; start < len(slugs); start += enrichConcurrency {
		end := start + enrichConcurrency
		if end > len(slugs) {
			end = len(slugs)
		}

		var wg sync.WaitGroup
		for _, slug := range slugs[start:end] {
			wg.Add(1)
			go func(slug string) {
				defer wg.Done()
				var group model.ManifoldGroup
				reqURL := strings.TrimSuffix(m.cfg.BaseURL, "/") + "/v0/group/" + url.PathEscape(slug)
				if err := httpclient.GetJSON(ctx, m.httpClient, reqURL, nil, &group, m.cfg.RetryCount, m.logger); err != nil {
					m.logger.WithError(err).Warnf("补充Manifold分组%s名称失败，回退slug", slug)
					return
				}
				mu.Lock()
				names[slug] = group.Name
				mu.Unlock()
			}(slug)
		}
		wg.Wait()
	}
	return names
}

func (m *Adapter) normalize(mk model.ManifoldMarket, description, category string) *model.NormalizedMarket {
	return &model.NormalizedMarket{
		MarketID:       mk.ID,
		Source:         model.SourceManifold,
		MarketName:     mk.Question,
		EventName:      category,
		MarketURL:      mk.URL,
		EventURL:       mk.URL,
		Description:    description,
		CreationDate:   millisToTime(mk.CreatedTime),
		ResolutionDate: millisToTime(mk.CloseTime),
		CurrentPrice:   normalizePrice(mk.Probability),
		Category:       category,
		SourceTags:     buildTags(mk.GroupSlugs),
	}
}

// normalizePrice [0,1]概率×100四舍五入，缺失兜底50
func normalizePrice(prob *float64) int {
	if prob == nil {
		return 50
	}
	price := int(math.Round(*prob * 100))
	if price < 0 {
		price = 0
	}
	if price > 100 {
		price = 100
	}
	return price
}

// decodeDescription Manifold 描述字段的标记变体解码：纯字符串或富文本对象统一为纯文本
// 富文本是 TipTap 风格的 {type,content,text} 嵌套结构，仅收集 text 节点
func decodeDescription(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var node richTextNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return ""
	}
	var sb strings.Builder
	collectText(&node, &sb)
	return strings.TrimSpace(sb.String())
}

type richTextNode struct {
	Type    string         `json:"type"`
	Text    string         `json:"text"`
	Content []richTextNode `json:"content"`
}

func collectText(n *richTextNode, sb *strings.Builder) {
	if n.Text != "" {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(n.Text)
	}
	for i := range n.Content {
		collectText(&n.Content[i], sb)
	}
}

func firstGroup(slugs []string) string {
	if len(slugs) == 0 {
		return ""
	}
	return slugs[0]
}

func buildTags(slugs []string) datatypes.JSON {
	if len(slugs) == 0 {
		return datatypes.JSON("[]")
	}
	b, err := json.Marshal(slugs)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return b
}

// millisToTime 毫秒时间戳转time.Time，0值视为缺失
func millisToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
