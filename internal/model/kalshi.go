package model

// KalshiMarketsResponse Kalshi GET /markets 响应
type KalshiMarketsResponse struct {
	Markets []KalshiMarket `json:"markets"`
	Cursor  string         `json:"cursor"`
}

// KalshiMarket Kalshi 市场原始结构（仅保留摄取所需字段）
// 价格字段为整数美分，天然等于 0-100 百分比
type KalshiMarket struct {
	Ticker       string `json:"ticker"`
	EventTicker  string `json:"event_ticker"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Status       string `json:"status"`
	OpenTime     string `json:"open_time"`
	CloseTime    string `json:"close_time"`
	LastPrice    int    `json:"last_price"`
	YesBid       int    `json:"yes_bid"`
	YesAsk       int    `json:"yes_ask"`
	Category     string `json:"category"`
	RulesPrimary string `json:"rules_primary"`
}

// KalshiEventResponse Kalshi GET /events/{ticker} 响应
type KalshiEventResponse struct {
	Event KalshiEvent `json:"event"`
}

// KalshiEvent Kalshi 事件（用于二次补充事件名称）
type KalshiEvent struct {
	EventTicker string `json:"event_ticker"`
	Title       string `json:"title"`
	Category    string `json:"category"`
}
