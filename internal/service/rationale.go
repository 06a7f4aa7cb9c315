package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MoverSync/internal/config"
	"MoverSync/internal/model"

	"github.com/sirupsen/logrus"
)

// RationaleService 调用OpenAI兼容接口为上榜市场生成解读文本
// 生成结果只透传给调用方，从不落库
type RationaleService struct {
	cfg        *config.RationaleConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewRationaleService 创建AI解读服务
func NewRationaleService(cfg *config.RationaleConfig, logger *logrus.Logger) *RationaleService {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RationaleService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Explain 为单个市场生成指定周期的涨跌解读
func (s *RationaleService) Explain(ctx context.Context, m *model.Market, period Period) (string, error) {
	if s.cfg.APIKey == "" {
		return "", fmt.Errorf("未配置AI解读服务的API密钥")
	}

	_, change := periodFields(m, period)
	changeDesc := "涨跌幅未知"
	if change != nil {
		changeDesc = fmt.Sprintf("%+d个百分点", *change)
	}

	prompt := fmt.Sprintf(
		"预测市场【%s】（%s）%s价格变动了%s，当前隐含概率%d%%。市场描述：%s。请用两三句话推测本次变动的可能原因。",
		m.MarketName, m.Source, period.Label(), changeDesc, m.CurrentPrice, truncate(m.Description, 500),
	)

	reqBody, err := json.Marshal(chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "你是预测市场分析助手，回答简洁客观，不给投资建议。"},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("构建请求体失败: %w", err)
	}

	url := strings.TrimSuffix(s.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("构建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求AI解读服务失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("读取AI响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI解读服务返回%d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("解析AI响应失败: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("AI解读服务未返回任何内容")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
