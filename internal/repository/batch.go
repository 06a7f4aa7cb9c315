package repository

// ItemFailure 批量写入中单条记录的失败明细
type ItemFailure struct {
	Key string // market_id/source 组合键
	Err error
}

// BatchResult 批量写入的逐条结果
// 批内个别失败不会中止整批，由调用方把失败数并入块级错误计数
type BatchResult struct {
	Succeeded int
	Failures  []ItemFailure
}

func (r *BatchResult) addFailure(key string, err error) {
	r.Failures = append(r.Failures, ItemFailure{Key: key, Err: err})
}

// FailedCount 失败条数
func (r *BatchResult) FailedCount() int {
	return len(r.Failures)
}
