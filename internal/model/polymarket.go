package model

// GammaEvent Polymarket Gamma API 事件原始结构
// /events 直接返回事件数组，无包裹对象
type GammaEvent struct {
	ID          string        `json:"id"`
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	CreatedAt   string        `json:"createdAt"`
	EndDate     string        `json:"endDate"`
	Active      bool          `json:"active"`
	Closed      bool          `json:"closed"`
	Markets     []GammaMarket `json:"markets"`
}

// GammaMarket Gamma API 市场原始结构
// Outcomes/OutcomePrices 为伪 JSON 数组字符串，如 "[\"Yes\",\"No\"]"、"[\"0.62\",\"0.38\"]"
type GammaMarket struct {
	ID            string `json:"id"`
	Question      string `json:"question"`
	Slug          string `json:"slug"`
	Description   string `json:"description"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
	CreatedAt     string `json:"createdAt"`
	EndDate       string `json:"endDate"`
}
