// Package stages 实现 pipeline 的五个处理阶段。
// 每个阶段嵌入 agent.Base，持有自己的 prompt 工具集，
// 输入输出通过 agent.Payload 传递，由 orchestrator 串接。
package stages

import (
	"context"
	"fmt"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/capability"
)

// DataCleaning 清洗阶段：校验行情数据、清洗新闻文本、标记异常点。
type DataCleaning struct {
	*agent.Base
}

// NewDataCleaning 创建清洗阶段 agent
func NewDataCleaning(inv capability.Invoker) (*DataCleaning, error) {
	base, err := agent.NewBase("data_cleaning", inv, []agent.PromptTool{
		{
			Name:        "validate_market_data",
			Description: "Validate market data for anomalies and quality issues",
			InputSchema: map[string]string{
				"market_data":      "string",
				"validation_rules": "array",
			},
			OutputSchema: map[string]string{
				"is_valid":      "boolean",
				"issues":        "array",
				"quality_score": "number",
			},
			Template: `You are a data validation expert for financial market data. Analyze the following market data:

Market Data:
{market_data}

Validation Rules:
{validation_rules}

Validate price ranges, volume sanity and timestamp formats.

Format your response as JSON:
{"is_valid": true, "issues": ["issue1"], "quality_score": 0.95}`,
		},
		{
			Name:        "clean_text_data",
			Description: "Clean and normalize text data from news sources",
			InputSchema: map[string]string{
				"raw_text":       "string",
				"cleaning_rules": "array",
			},
			OutputSchema: map[string]string{
				"cleaned_text":     "string",
				"removed_elements": "array",
			},
			Template: `You are a text cleaning specialist. Clean the following raw text data:

Raw Text:
{raw_text}

Cleaning Rules:
{cleaning_rules}

Remove HTML tags and special characters, normalize whitespace and
encoding, preserve meaningful content.

Format as JSON:
{"cleaned_text": "...", "removed_elements": ["html tags"]}`,
		},
		{
			Name:        "detect_anomalies",
			Description: "Detect anomalies in market data patterns",
			InputSchema: map[string]string{
				"data_points":        "array",
				"historical_context": "string",
			},
			OutputSchema: map[string]string{
				"anomalies":       "array",
				"confidence":      "number",
				"recommendations": "array",
			},
			Template: `You are an expert at detecting anomalies in financial market data. Analyze these data points:

Data Points:
{data_points}

Historical Context:
{historical_context}

Identify statistical outliers, timing irregularities and
volume/price inconsistencies.

Format as JSON:
{"anomalies": [{"type": "outlier", "description": "...", "severity": "high"}], "confidence": 0.85, "recommendations": ["..."]}`,
		},
	})
	if err != nil {
		return nil, err
	}
	return &DataCleaning{Base: base}, nil
}

type validationResult struct {
	IsValid      bool     `json:"is_valid"`
	Issues       []string `json:"issues"`
	QualityScore float64  `json:"quality_score"`
}

type textCleaningResult struct {
	CleanedText     string   `json:"cleaned_text"`
	RemovedElements []string `json:"removed_elements"`
}

type anomalyResult struct {
	Anomalies []struct {
		Type        string `json:"type"`
		Description string `json:"description"`
		Severity    string `json:"severity"`
	} `json:"anomalies"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

// Process 清洗一个市场的原始数据。
// 校验不通过（is_valid=false）视为处理失败，阻断后续阶段。
func (a *DataCleaning) Process(ctx context.Context, input agent.Payload) (agent.Payload, error) {
	return a.Track(ctx, input, func(ctx context.Context, input agent.Payload) (agent.Payload, error) {
		raw, err := a.GenerateWithPrompt(ctx, "validate_market_data", map[string]interface{}{
			"market_data":      fmt.Sprintf("%v", input["market_data"]),
			"validation_rules": []string{"price_range", "volume_check", "timestamp_format"},
		})
		if err != nil {
			return nil, err
		}
		var validation validationResult
		if err := capability.DecodeJSON(raw, &validation); err != nil {
			return nil, err
		}
		if !validation.IsValid {
			return nil, fmt.Errorf("market data failed validation: %v", validation.Issues)
		}

		out := agent.Payload{
			"market_id":     input["market_id"],
			"market_data":   input["market_data"],
			"price_data":    input["price_data"],
			"quality_score": validation.QualityScore,
		}

		if news, ok := input["news_data"]; ok {
			raw, err := a.GenerateWithPrompt(ctx, "clean_text_data", map[string]interface{}{
				"raw_text":       fmt.Sprintf("%v", news),
				"cleaning_rules": []string{"remove_html", "normalize_encoding", "clean_whitespace"},
			})
			if err != nil {
				return nil, err
			}
			var cleaned textCleaningResult
			if err := capability.DecodeJSON(raw, &cleaned); err != nil {
				return nil, err
			}
			out["news_data"] = cleaned.CleanedText
		}

		raw, err = a.GenerateWithPrompt(ctx, "detect_anomalies", map[string]interface{}{
			"data_points":        input["price_data"],
			"historical_context": "Recent market volatility and trading patterns",
		})
		if err != nil {
			return nil, err
		}
		var anomalies anomalyResult
		if err := capability.DecodeJSON(raw, &anomalies); err != nil {
			return nil, err
		}
		out["anomaly_count"] = len(anomalies.Anomalies)
		a.SetStateData("last_quality_score", validation.QualityScore)

		return out, nil
	})
}
