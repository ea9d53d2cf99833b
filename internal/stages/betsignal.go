package stages

import (
	"context"
	"fmt"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/capability"
	"github.com/predictbot/gopredict/internal/domain"
	"github.com/predictbot/gopredict/pkg/config"
)

// BetSignal 信号阶段：把模型预测与市场价差转成下注信号。
// 置信度过滤与头寸规模在本地完成，机会分析走 capability。
type BetSignal struct {
	*agent.Base

	risk   config.RiskConfig
	sizing SizingPolicy
}

// NewBetSignal 创建信号阶段 agent。sizing 传 nil 时使用分数 Kelly。
func NewBetSignal(inv capability.Invoker, risk config.RiskConfig, sizing SizingPolicy) (*BetSignal, error) {
	base, err := agent.NewBase("bet_signal", inv, []agent.PromptTool{
		{
			Name:        "analyze_market_opportunity",
			Description: "Analyze market opportunities for betting signals",
			InputSchema: map[string]string{
				"market_data":       "object",
				"model_predictions": "object",
				"market_context":    "string",
				"risk_tolerance":    "string",
			},
			OutputSchema: map[string]string{
				"opportunity_score": "number",
				"signal_direction":  "string",
				"confidence_level":  "number",
				"risk_factors":      "array",
			},
			Template: `You are a quantitative trading expert specializing in prediction markets. Analyze the betting opportunity:

Market Data:
{market_data}

Model Predictions:
{model_predictions}

Market Context:
{market_context}

Risk Tolerance:
{risk_tolerance}

Compare implied probability against the model's prediction,
account for spread, liquidity and time to resolution.
signal_direction must be one of buy_yes, buy_no, hold.

Format as JSON:
{"opportunity_score": 0.75, "signal_direction": "buy_yes", "confidence_level": 0.82, "risk_factors": [{"factor": "low_liquidity", "impact": "medium"}]}`,
		},
	})
	if err != nil {
		return nil, err
	}
	if sizing == nil {
		sizing = KellyPolicy{Fraction: risk.KellyFraction, BetSizeLimit: risk.BetSizeLimit}
	}
	return &BetSignal{Base: base, risk: risk, sizing: sizing}, nil
}

type opportunityAnalysis struct {
	OpportunityScore float64 `json:"opportunity_score"`
	SignalDirection  string  `json:"signal_direction"`
	ConfidenceLevel  float64 `json:"confidence_level"`
	RiskFactors      []struct {
		Factor string `json:"factor"`
		Impact string `json:"impact"`
	} `json:"risk_factors"`
}

// Process 生成信号。输入需含 "market"、"prediction"、"bankroll"。
// 置信度低于 MinConfidence 或无正边际时降级为 hold。
// 输出写入 "signal"（domain.BetSignal）。
func (a *BetSignal) Process(ctx context.Context, input agent.Payload) (agent.Payload, error) {
	return a.Track(ctx, input, func(ctx context.Context, input agent.Payload) (agent.Payload, error) {
		market, ok := input["market"].(domain.Market)
		if !ok {
			return nil, fmt.Errorf("bet_signal: input missing market")
		}
		prediction, ok := input["prediction"].(float64)
		if !ok {
			return nil, fmt.Errorf("bet_signal: input missing prediction")
		}
		bankroll, _ := input["bankroll"].(float64)

		marketPrice := market.YesAsk.ToDecimal()

		raw, err := a.GenerateWithPrompt(ctx, "analyze_market_opportunity", map[string]interface{}{
			"market_data": map[string]interface{}{
				"current_price":  marketPrice,
				"bid_ask_spread": market.YesAsk.ToDecimal() - market.YesBid.ToDecimal(),
				"volume":         market.Volume,
				"close_time":     market.CloseTime,
			},
			"model_predictions": map[string]interface{}{
				"predicted_probability": prediction,
				"model_accuracy":        input["model_accuracy"],
			},
			"market_context": market.Title,
			"risk_tolerance": "moderate",
		})
		if err != nil {
			return nil, err
		}
		var analysis opportunityAnalysis
		if err := capability.DecodeJSON(raw, &analysis); err != nil {
			return nil, err
		}

		signal := a.buildSignal(market, prediction, bankroll, analysis)
		a.SetStateData("last_signal", string(signal.Signal))

		out := clonePayload(input)
		out["signal"] = signal
		return out, nil
	})
}

// buildSignal 本地风控：置信度过滤 + 头寸规模。
// capability 给方向，数值判断不外包。
func (a *BetSignal) buildSignal(market domain.Market, prediction, bankroll float64, analysis opportunityAnalysis) domain.BetSignal {
	signal := domain.BetSignal{
		MarketID:   market.ID,
		Signal:     domain.SignalHold,
		Confidence: analysis.ConfidenceLevel,
	}

	kind := domain.SignalKind(analysis.SignalDirection)
	if kind != domain.SignalBuyYes && kind != domain.SignalBuyNo {
		return signal
	}
	if analysis.ConfidenceLevel <= a.risk.MinConfidence {
		return signal
	}

	// buy_no 等价于以 (1 - yesBid) 买入 no 侧
	winProb, price := prediction, market.YesAsk.ToDecimal()
	if kind == domain.SignalBuyNo {
		winProb = 1 - prediction
		price = market.YesBid.Complement().ToDecimal()
	}

	signal.ExpectedValue = winProb - price
	if signal.ExpectedValue <= 0 {
		return signal
	}

	size := a.sizing.Size(winProb, price, bankroll)
	if size <= 0 {
		return signal
	}

	signal.Signal = kind
	signal.RecommendedSize = size
	return signal
}

// ToOrder 把可执行信号转换为订单。
// 调用方必须先检查 IsActionable。
func ToOrder(signal domain.BetSignal, market domain.Market) domain.BetOrder {
	price := market.YesAsk
	if signal.Signal == domain.SignalBuyNo {
		price = market.YesBid.Complement()
	}
	return domain.BetOrder{
		MarketID:  signal.MarketID,
		Side:      signal.OrderSide(),
		Amount:    signal.RecommendedSize,
		Price:     price,
		OrderType: domain.OrderTypeLimit,
	}
}
