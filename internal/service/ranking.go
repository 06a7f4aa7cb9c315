package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"MoverSync/internal/model"
	"MoverSync/internal/repository"

	"github.com/sirupsen/logrus"
)

// Period 回看周期标识
type Period string

const (
	Period1Day   Period = "1d"
	Period1Week  Period = "1w"
	Period1Month Period = "1m"
)

// topMoversLimit 排行榜长度上限
const topMoversLimit = 20

// ParsePeriod 解析周期参数
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case Period1Day, Period1Week, Period1Month:
		return Period(s), nil
	default:
		return "", fmt.Errorf("无效的周期参数: %q（可选 1d/1w/1m）", s)
	}
}

// Label 周期的可读标签（供AI解读的提示词使用）
func (p Period) Label() string {
	switch p {
	case Period1Week:
		return "过去一周"
	case Period1Month:
		return "过去一个月"
	default:
		return "过去24小时"
	}
}

// MoversResult 排行结果
// Fallback 为 true 表示无任何市场具备该周期的有效涨跌，退化为最近更新列表
type MoversResult struct {
	Period      Period          `json:"period"`
	Fallback    bool            `json:"fallback"`
	Markets     []*model.Market `json:"markets"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// MoverService 按涨跌幅度排行
type MoverService struct {
	markets repository.MarketRepository
	engine  *ChangeEngine
	logger  *logrus.Logger
}

// NewMoverService 创建排行服务
func NewMoverService(markets repository.MarketRepository, engine *ChangeEngine, logger *logrus.Logger) *MoverService {
	return &MoverService{markets: markets, engine: engine, logger: logger}
}

// TopMovers 返回指定周期内涨跌绝对值最大的至多20个市场
// 仅统计未被排除、且该周期旧价与涨跌均非空的市场；空集时退化为最近更新列表
func (s *MoverService) TopMovers(ctx context.Context, period Period) (*MoversResult, error) {
	now := time.Now().UTC()
	result := &MoversResult{Period: period, GeneratedAt: now}

	all, err := s.markets.ListNotExcluded(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询候选市场失败: %w", err)
	}

	s.engine.ComputeChangesBatch(ctx, all, now)

	var eligible []*model.Market
	for _, m := range all {
		prior, change := periodFields(m, period)
		if prior != nil && change != nil {
			eligible = append(eligible, m)
		}
	}

	if len(eligible) == 0 {
		s.logger.Warnf("周期%s无任何市场具备有效涨跌，退化为最近更新列表", period)
		recent, err := s.markets.ListRecentlyUpdated(ctx, topMoversLimit)
		if err != nil {
			return nil, fmt.Errorf("查询兜底列表失败: %w", err)
		}
		result.Fallback = true
		result.Markets = recent
		return result, nil
	}

	// 绝对值降序；同幅度时按 source、market_id 升序，保证输出确定性
	sort.Slice(eligible, func(i, j int) bool {
		_, ci := periodFields(eligible[i], period)
		_, cj := periodFields(eligible[j], period)
		ai, aj := abs(*ci), abs(*cj)
		if ai != aj {
			return ai > aj
		}
		if eligible[i].Source != eligible[j].Source {
			return eligible[i].Source < eligible[j].Source
		}
		return eligible[i].MarketID < eligible[j].MarketID
	})

	if len(eligible) > topMoversLimit {
		eligible = eligible[:topMoversLimit]
	}
	result.Markets = eligible
	return result, nil
}

// periodFields 取出某周期对应的旧价与涨跌字段
func periodFields(m *model.Market, period Period) (*float64, *int) {
	switch period {
	case Period1Week:
		return m.Price1WeekAgo, m.PriceChange1Week
	case Period1Month:
		return m.Price1MonthAgo, m.PriceChange1Month
	default:
		return m.Price1DayAgo, m.PriceChange1Day
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
