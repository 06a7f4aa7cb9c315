package model

import (
	"time"

	"gorm.io/datatypes"
)

// Source 数据来源平台枚举
type Source string

const (
	SourceKalshi     Source = "kalshi"
	SourcePolymarket Source = "polymarket"
	SourceManifold   Source = "manifold"
)

// AllSources 当前支持的全部来源
var AllSources = []Source{SourceKalshi, SourcePolymarket, SourceManifold}

// NormalizedMarket 适配器输出的统一市场结构（入库前的中间形态，不落库）
// CurrentPrice 恒在 [0,100]，来源缺少价格信息时兜底为 50
type NormalizedMarket struct {
	MarketID       string
	Source         Source
	MarketName     string
	EventName      string
	MarketURL      string
	EventURL       string
	Description    string
	CreationDate   *time.Time
	ResolutionDate *time.Time
	CurrentPrice   int
	Category       string
	SourceTags     datatypes.JSON // 来源侧标签/分组原始列表
}

// Market 市场当前态表，(market_id, source) 唯一
// 价格变动字段只在读取时由变动引擎填充到内存副本，刷新流程不写入
type Market struct {
	ID                uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	MarketID          string         `gorm:"column:market_id;type:varchar(128);not null;uniqueIndex:uk_market_source;comment:平台原生市场ID"`
	Source            Source         `gorm:"column:source;type:varchar(16);not null;uniqueIndex:uk_market_source;comment:来源平台"`
	MarketName        string         `gorm:"column:market_name;type:varchar(512);not null;comment:市场名称"`
	EventName         string         `gorm:"column:event_name;type:varchar(512);comment:所属事件名称"`
	MarketURL         string         `gorm:"column:market_url;type:varchar(512);comment:市场链接"`
	EventURL          string         `gorm:"column:event_url;type:varchar(512);comment:事件链接"`
	Description       string         `gorm:"column:description;type:text;comment:市场描述"`
	CreationDate      *time.Time     `gorm:"column:creation_date;type:timestamp;comment:市场创建时间"`
	ResolutionDate    *time.Time     `gorm:"column:resolution_date;type:timestamp;comment:预计结算时间"`
	CurrentPrice      int            `gorm:"column:current_price;type:int;not null;comment:当前价格（0-100整数百分比）"`
	Category          string         `gorm:"column:category;type:varchar(64);comment:来源侧分类"`
	SourceTags        datatypes.JSON `gorm:"column:source_tags;type:jsonb;comment:来源侧标签列表"`
	Price1DayAgo      *float64       `gorm:"column:price_1day_ago;type:numeric(8,2);comment:1天前价格"`
	Price1WeekAgo     *float64       `gorm:"column:price_1week_ago;type:numeric(8,2);comment:1周前价格"`
	Price1MonthAgo    *float64       `gorm:"column:price_1month_ago;type:numeric(8,2);comment:1月前价格"`
	PriceChange1Day   *int           `gorm:"column:price_change_1day;type:int;comment:1天涨跌（百分点，带符号）"`
	PriceChange1Week  *int           `gorm:"column:price_change_1week;type:int;comment:1周涨跌（百分点，带符号）"`
	PriceChange1Month *int           `gorm:"column:price_change_1month;type:int;comment:1月涨跌（百分点，带符号）"`
	IsExcluded        bool           `gorm:"column:is_excluded;type:boolean;default:false;index;comment:是否被管理端排除"`
	ExcludedBy        *string        `gorm:"column:excluded_by;type:varchar(64);comment:排除操作人"`
	ExcludedAt        *time.Time     `gorm:"column:excluded_at;type:timestamp;comment:排除时间"`
	LastUpdated       time.Time      `gorm:"column:last_updated;type:timestamp;not null;index;comment:最近一次摄取时间"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime;comment:创建时间"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime;comment:更新时间"`
}

// TableName 指定表名
func (m *Market) TableName() string {
	return "markets"
}

// HistoricalPrice 历史价格快照表，只追加不修改
// 每轮刷新为每个已存在的市场追加一行，记录被覆盖前的价格，时间戳取本轮刷新的参考时刻
type HistoricalPrice struct {
	ID        uint64    `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	MarketID  string    `gorm:"column:market_id;type:varchar(128);not null;index:idx_market_source_ts,priority:1;comment:平台原生市场ID"`
	Source    Source    `gorm:"column:source;type:varchar(16);not null;index:idx_market_source_ts,priority:2;comment:来源平台"`
	Price     float64   `gorm:"column:price;type:numeric(8,2);not null;comment:快照价格"`
	Timestamp time.Time `gorm:"column:timestamp;type:timestamp;not null;index:idx_market_source_ts,priority:3;comment:快照时间"`
}

// TableName 指定表名
func (h *HistoricalPrice) TableName() string {
	return "historical_prices"
}

// PriceChanges 变动引擎对单个市场的计算结果
// prior 为 nil 表示该回看周期内无有效历史价格（或市场当时不存在），对应 change 亦为 nil
type PriceChanges struct {
	Price1DayAgo      *float64
	Price1WeekAgo     *float64
	Price1MonthAgo    *float64
	PriceChange1Day   *int
	PriceChange1Week  *int
	PriceChange1Month *int
}

// ApplyTo 把计算结果填充到市场的内存副本上
func (c *PriceChanges) ApplyTo(m *Market) {
	m.Price1DayAgo = c.Price1DayAgo
	m.Price1WeekAgo = c.Price1WeekAgo
	m.Price1MonthAgo = c.Price1MonthAgo
	m.PriceChange1Day = c.PriceChange1Day
	m.PriceChange1Week = c.PriceChange1Week
	m.PriceChange1Month = c.PriceChange1Month
}
