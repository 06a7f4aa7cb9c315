package interfaces

import (
	"context"

	"MoverSync/internal/model"
)

// SourceAdapter 所有来源平台必须实现的核心接口
// FetchMarkets 分页拉取到尽头，重试耗尽后返回错误，由刷新编排层决定降级策略
type SourceAdapter interface {
	GetName() string                                                  // 平台名称
	GetSource() model.Source                                          // 来源枚举
	FetchMarkets(ctx context.Context) ([]*model.NormalizedMarket, error) // 拉取并规范化市场
}
