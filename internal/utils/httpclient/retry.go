package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	baseBackoff    = time.Second
	maxBackoff     = 30 * time.Second
	jitterFraction = 0.3
)

// APIError 上游API的非2xx响应
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable 429 与 5xx 视为瞬时故障，可重试
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// BackoffDelay 第n次尝试（0起算）前的退避时长
// min(1s × 2^n × (1 + 最多30%随机抖动), 30s)，抖动每次重新抽取，错开并发适配器的重试节奏
func BackoffDelay(attempt int) time.Duration {
	d := baseBackoff * (1 << attempt)
	d = time.Duration(float64(d) * (1 + rand.Float64()*jitterFraction))
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// GetJSON 发起GET请求并解析JSON，瞬时故障按退避策略重试
// maxAttempts 为总尝试次数（含首次）；重试耗尽后返回最后一次错误
func GetJSON(ctx context.Context, client *http.Client, rawURL string, header http.Header, out any, maxAttempts int, logger *logrus.Logger) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := BackoffDelay(attempt)
			logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
				"url":     rawURL,
			}).Debug("等待退避后重试请求")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		body, err := doGet(ctx, client, rawURL, header)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("解析响应失败: %w", err)
			}
			return nil
		}
		lastErr = err

		// 4xx（除429）不重试，直接返回
		if apiErr, ok := err.(*APIError); ok && !apiErr.IsRetryable() {
			return err
		}
	}

	return fmt.Errorf("重试耗尽: %w", lastErr)
}

func doGet(ctx context.Context, client *http.Client, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}
	return body, nil
}
