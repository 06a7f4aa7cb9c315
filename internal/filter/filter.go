// Package filter 分层启发式的市场类目过滤器
// 只承诺关键词/模式层面的契约，不追求语义正确；少量误判可接受
package filter

import (
	"regexp"
	"strings"
)

// allowKeywords 放行主题关键词：命中任意一个则永不排除，优先级最高
var allowKeywords = []string{
	"politics",
	"election",
	"elections",
	"regulation",
	"technology",
	"artificial intelligence",
	"company",
	"companies",
}

// allowWordPatterns 需按整词匹配的放行关键词（"ai"作子串会误命中ukraine等）
var allowWordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bai\b`),
}

// sportsAcronyms 体育缩写，按全大写整词匹配（在原始大小写文本上）
var sportsAcronyms = regexp.MustCompile(`\b(NBA|NFL|MLB|NHL|NCAA|FIFA|UEFA|EPL|UFC|MMA|ATP|WTA|PGA)\b`)

// sportsWords 普通体育词汇，小写子串匹配
var sportsWords = []string{
	"soccer", "football", "basketball", "baseball", "hockey",
	"tennis", "golf", "cricket", "rugby", "boxing", "wrestling",
	"nascar", "olympic", "super bowl", "world cup", "premier league",
	"playoff", "touchdown", "quarterback", "home run", "grand slam",
}

// propBetPatterns 体育道具盘口模式（球员得分/篮板类盘口的典型句式）
var propBetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\byes\s+[A-Za-z]+\s+[A-Za-z]+:\s*\d+\+`),    // yes Stephen Curry: 30+
	regexp.MustCompile(`(?i)\d+\+\s*,\s*yes\s+[A-Za-z]+`),               // 25+, yes Jokic
	regexp.MustCompile(`(?i)\bover/under\s+\d+(\.\d+)?\s+points\b`),     // Over/Under 42.5 points
}

// nbaCityFragments 几乎只出现在球员道具盘口里的球队城市片段（启发式）
var nbaCityFragments = []string{
	"lakers", "celtics", "warriors", "knicks", "bucks", "nuggets",
	"clippers", "mavericks", "grizzlies", "pelicans", "raptors",
	"timberwolves", "thunder", "sixers", "76ers",
}

// pricePatterns 加密货币价格阈值盘口模式
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(btc|bitcoin|eth|ethereum|sol|solana|doge|dogecoin)\b[^$]*\b(above|below|reach|hit|at)\b[^$]*\$[\d,]+`),
	regexp.MustCompile(`(?i)\bwill\s+(btc|bitcoin|eth|ethereum)\b[^$]*\b(reach|hit)\b[^$]*\$[\d,]+`),
	regexp.MustCompile(`(?i)\bprice\s+(above|below|reach)\b[^$]*\$[\d,]+`),
}

// ShouldExclude 判定市场是否应被排除，纯函数，按序逐层判定，首个命中即返回
// 放行主题命中时永不排除，即使同时出现体育词汇
func ShouldExclude(title, description, category string) bool {
	blob := title + " " + description + " " + category
	lower := strings.ToLower(blob)

	// 1. 放行主题优先于一切排除规则
	for _, kw := range allowKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, re := range allowWordPatterns {
		if re.MatchString(blob) {
			return false
		}
	}

	// 2. 体育缩写（整词、保留大小写）与体育词汇（子串）
	if sportsAcronyms.MatchString(blob) {
		return true
	}
	for _, w := range sportsWords {
		if strings.Contains(lower, w) {
			return true
		}
	}

	// 3. 道具盘口句式
	for _, re := range propBetPatterns {
		if re.MatchString(blob) {
			return true
		}
	}

	// 4. NBA城市/球队片段
	for _, frag := range nbaCityFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}

	// 5. 价格阈值盘口
	for _, re := range pricePatterns {
		if re.MatchString(blob) {
			return true
		}
	}

	return false
}
