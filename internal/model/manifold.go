package model

import "encoding/json"

// ManifoldMarket Manifold GET /v0/markets 市场原始结构
// Description 可能是纯字符串，也可能是富文本对象，由适配器统一解码为纯文本
type ManifoldMarket struct {
	ID          string          `json:"id"`
	Question    string          `json:"question"`
	URL         string          `json:"url"`
	OutcomeType string          `json:"outcomeType"`
	Probability *float64        `json:"probability"`
	CreatedTime int64           `json:"createdTime"` // 毫秒时间戳
	CloseTime   int64           `json:"closeTime"`   // 毫秒时间戳
	IsResolved  bool            `json:"isResolved"`
	Description json.RawMessage `json:"description"`
	GroupSlugs  []string        `json:"groupSlugs"`
}

// ManifoldGroup Manifold GET /v0/group/{slug} 响应
type ManifoldGroup struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}
