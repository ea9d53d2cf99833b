package capability

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/predictbot/gopredict/internal/faults"
	"github.com/predictbot/gopredict/pkg/config"
)

const systemPrompt = "You are an analysis component inside an automated " +
	"prediction-market trading pipeline. Answer precisely and, when asked " +
	"for JSON, return only valid JSON."

// ChatModelInvoker backs the capability boundary with an eino chat model.
type ChatModelInvoker struct {
	model model.ChatModel
}

// NewChatModelInvoker 用配置构建 OpenAI 兼容的 chat model 后端。
func NewChatModelInvoker(ctx context.Context, cfg config.ModelConfig) (*ChatModelInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("capability: model api_key is required")
	}
	maxTokens := cfg.MaxTokens
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("capability: init chat model: %w", err)
	}
	return &ChatModelInvoker{model: cm}, nil
}

// Generate 调用模型生成一次。网络/模型错误按 transient 分类（调用方重试）。
func (c *ChatModelInvoker) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := c.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", faults.ErrTimeout
		}
		return "", faults.Transient(fmt.Errorf("capability: generate: %w", err))
	}
	return msg.Content, nil
}
