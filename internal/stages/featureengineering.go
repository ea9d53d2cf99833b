package stages

import (
	"context"
	"fmt"
	"time"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/capability"
	"github.com/predictbot/gopredict/internal/domain"
)

// FeatureEngineering 特征阶段：从清洗后的数据生成 ML 特征向量。
// 数值特征直接计算，语义特征（情绪、技术面判断）走 capability。
type FeatureEngineering struct {
	*agent.Base
}

// NewFeatureEngineering 创建特征阶段 agent
func NewFeatureEngineering(inv capability.Invoker) (*FeatureEngineering, error) {
	base, err := agent.NewBase("feature_engineering", inv, []agent.PromptTool{
		{
			Name:        "extract_sentiment_features",
			Description: "Extract sentiment and news-based features",
			InputSchema: map[string]string{
				"news_text":      "string",
				"market_context": "string",
				"keywords":       "array",
			},
			OutputSchema: map[string]string{
				"sentiment_score":      "number",
				"emotional_indicators": "object",
			},
			Template: `You are a sentiment analysis expert for financial markets. Extract sentiment features from the following news text:

News Text:
{news_text}

Market Context:
{market_context}

Keywords to Watch:
{keywords}

Report overall polarity (-1 to 1) and emotional indicators
(fear, greed, confidence, uncertainty), each 0 to 1.

Format as JSON:
{"sentiment_score": 0.65, "emotional_indicators": {"fear": 0.2, "greed": 0.7, "confidence": 0.8, "uncertainty": 0.3}}`,
		},
		{
			Name:        "generate_technical_indicators",
			Description: "Generate technical analysis indicators and features",
			InputSchema: map[string]string{
				"price_data":   "array",
				"volume_data":  "array",
				"time_periods": "array",
			},
			OutputSchema: map[string]string{
				"indicators": "object",
				"signals":    "object",
			},
			Template: `You are a technical analysis expert. Generate technical indicators from the following data:

Price Data:
{price_data}

Volume Data:
{volume_data}

Time Periods:
{time_periods}

Compute momentum, RSI, volume ratio and trend assessment for a
prediction market contract.

Format as JSON:
{"indicators": {"rsi_14": 65.5, "macd_signal": 0.025, "volume_ratio": 1.2, "momentum": 0.04}, "signals": {"trend": "upward", "volatility": "high"}}`,
		},
	})
	if err != nil {
		return nil, err
	}
	return &FeatureEngineering{Base: base}, nil
}

type sentimentFeatures struct {
	SentimentScore      float64            `json:"sentiment_score"`
	EmotionalIndicators map[string]float64 `json:"emotional_indicators"`
}

type technicalFeatures struct {
	Indicators map[string]float64 `json:"indicators"`
	Signals    map[string]string  `json:"signals"`
}

// featureColumns 向量列序固定，检索侧依赖同一布局
var featureColumns = []string{
	"yes_bid", "yes_ask", "spread", "volume",
	"sentiment_score", "fear", "greed", "confidence", "uncertainty",
	"rsi_14", "macd_signal", "volume_ratio", "momentum",
}

// Process 生成特征批。输入需含 market（domain.Market）；
// 输出写入 "features"（domain.FeatureBatch）。
func (a *FeatureEngineering) Process(ctx context.Context, input agent.Payload) (agent.Payload, error) {
	return a.Track(ctx, input, func(ctx context.Context, input agent.Payload) (agent.Payload, error) {
		market, ok := input["market"].(domain.Market)
		if !ok {
			return nil, fmt.Errorf("feature_engineering: input missing market")
		}

		columns := map[string]float64{
			"yes_bid": market.YesBid.ToDecimal(),
			"yes_ask": market.YesAsk.ToDecimal(),
			"spread":  market.YesAsk.ToDecimal() - market.YesBid.ToDecimal(),
			"volume":  float64(market.Volume),
		}

		raw, err := a.GenerateWithPrompt(ctx, "extract_sentiment_features", map[string]interface{}{
			"news_text":      fmt.Sprintf("%v", input["news_data"]),
			"market_context": "Prediction market betting patterns",
			"keywords":       []string{"election", "outcome", "probability", "betting"},
		})
		if err != nil {
			return nil, err
		}
		var sentiment sentimentFeatures
		if err := capability.DecodeJSON(raw, &sentiment); err != nil {
			return nil, err
		}
		columns["sentiment_score"] = sentiment.SentimentScore
		for _, k := range []string{"fear", "greed", "confidence", "uncertainty"} {
			columns[k] = sentiment.EmotionalIndicators[k]
		}

		raw, err = a.GenerateWithPrompt(ctx, "generate_technical_indicators", map[string]interface{}{
			"price_data":   input["price_data"],
			"volume_data":  input["volume_data"],
			"time_periods": []string{"5min", "15min", "1hour"},
		})
		if err != nil {
			return nil, err
		}
		var technical technicalFeatures
		if err := capability.DecodeJSON(raw, &technical); err != nil {
			return nil, err
		}
		for _, k := range []string{"rsi_14", "macd_signal", "volume_ratio", "momentum"} {
			columns[k] = technical.Indicators[k]
		}

		vector := make([]float64, len(featureColumns))
		for i, name := range featureColumns {
			vector[i] = columns[name]
		}

		batch := domain.FeatureBatch{
			MarketID:  market.ID,
			Timestamp: time.Now(),
			Vector:    vector,
			Columns:   columns,
			Metadata: map[string]string{
				"trend":      technical.Signals["trend"],
				"volatility": technical.Signals["volatility"],
			},
		}

		out := clonePayload(input)
		out["features"] = batch
		return out, nil
	})
}

func clonePayload(in agent.Payload) agent.Payload {
	out := make(agent.Payload, len(in)+2)
	for k, v := range in {
		out[k] = v
	}
	return out
}
