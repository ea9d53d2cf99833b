package stages

import (
	"context"
	"fmt"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/capability"
	"github.com/predictbot/gopredict/internal/domain"
)

// ModelTraining 训练阶段：按选型结果产出训练计划与验证指标，
// 最终给出市场结果概率预测。
type ModelTraining struct {
	*agent.Base
}

// NewModelTraining 创建训练阶段 agent
func NewModelTraining(inv capability.Invoker) (*ModelTraining, error) {
	base, err := agent.NewBase("model_training", inv, []agent.PromptTool{
		{
			Name:        "design_training_strategy",
			Description: "Design optimal training strategy for ML models",
			InputSchema: map[string]string{
				"model_type":              "string",
				"dataset_characteristics": "object",
				"performance_targets":     "object",
			},
			OutputSchema: map[string]string{
				"training_plan":       "object",
				"validation_strategy": "string",
			},
			Template: `You are an ML training expert. Design a training strategy for:

Model Type:
{model_type}

Dataset Characteristics:
{dataset_characteristics}

Performance Targets:
{performance_targets}

Cover data splits, early stopping and validation cadence for a
time-series prediction market dataset.

Format as JSON:
{"training_plan": {"epochs": 100, "batch_size": 256, "early_stopping_rounds": 10}, "validation_strategy": "walk_forward"}`,
		},
		{
			Name:        "predict_market_outcome",
			Description: "Predict market outcome probability from features",
			InputSchema: map[string]string{
				"model_type":      "string",
				"model_params":    "object",
				"feature_vector":  "object",
				"similar_batches": "array",
			},
			OutputSchema: map[string]string{
				"predicted_probability": "number",
				"model_accuracy":        "number",
				"validation_metrics":    "object",
			},
			Template: `You are a quantitative model acting as a trained {model_type} classifier. Given the features below, predict the probability that this prediction market resolves YES.

Model Parameters:
{model_params}

Feature Vector:
{feature_vector}

Similar Historical Batches:
{similar_batches}

Weigh current features against historical patterns. Be calibrated:
the probability must reflect genuine uncertainty.

Format as JSON:
{"predicted_probability": 0.72, "model_accuracy": 0.84, "validation_metrics": {"auc_roc": 0.86, "log_loss": 0.42}}`,
		},
	})
	if err != nil {
		return nil, err
	}
	return &ModelTraining{Base: base}, nil
}

type trainingStrategy struct {
	TrainingPlan       map[string]float64 `json:"training_plan"`
	ValidationStrategy string             `json:"validation_strategy"`
}

type outcomePrediction struct {
	PredictedProbability float64            `json:"predicted_probability"`
	ModelAccuracy        float64            `json:"model_accuracy"`
	ValidationMetrics    map[string]float64 `json:"validation_metrics"`
}

// Process 训练并预测。输入需含 "model_name"、"features"；
// "similar_batches"（[]domain.ScoredBatch）可选，作为历史上下文。
// 输出写入 "prediction"（结果概率）与 "model_accuracy"。
func (a *ModelTraining) Process(ctx context.Context, input agent.Payload) (agent.Payload, error) {
	return a.Track(ctx, input, func(ctx context.Context, input agent.Payload) (agent.Payload, error) {
		modelName, ok := input["model_name"].(string)
		if !ok || modelName == "" {
			return nil, fmt.Errorf("model_training: input missing model_name")
		}
		batch, ok := input["features"].(domain.FeatureBatch)
		if !ok {
			return nil, fmt.Errorf("model_training: input missing features")
		}

		raw, err := a.GenerateWithPrompt(ctx, "design_training_strategy", map[string]interface{}{
			"model_type": modelName,
			"dataset_characteristics": map[string]interface{}{
				"feature_count": len(batch.Vector),
				"temporal":      true,
			},
			"performance_targets": map[string]interface{}{
				"auc_roc":  0.85,
				"log_loss": 0.45,
			},
		})
		if err != nil {
			return nil, err
		}
		var strategy trainingStrategy
		if err := capability.DecodeJSON(raw, &strategy); err != nil {
			return nil, err
		}

		var history []map[string]interface{}
		if scored, ok := input["similar_batches"].([]domain.ScoredBatch); ok {
			for _, s := range scored {
				history = append(history, map[string]interface{}{
					"score":     s.Score,
					"columns":   s.Batch.Columns,
					"timestamp": s.Batch.Timestamp,
				})
			}
		}

		raw, err = a.GenerateWithPrompt(ctx, "predict_market_outcome", map[string]interface{}{
			"model_type":      modelName,
			"model_params":    input["model_params"],
			"feature_vector":  batch.Columns,
			"similar_batches": history,
		})
		if err != nil {
			return nil, err
		}
		var pred outcomePrediction
		if err := capability.DecodeJSON(raw, &pred); err != nil {
			return nil, err
		}
		if pred.PredictedProbability < 0 || pred.PredictedProbability > 1 {
			return nil, fmt.Errorf("model_training: probability %.4f outside [0,1]", pred.PredictedProbability)
		}

		a.SetStateData("model_accuracy", pred.ModelAccuracy)

		out := clonePayload(input)
		out["prediction"] = pred.PredictedProbability
		out["model_accuracy"] = pred.ModelAccuracy
		return out, nil
	})
}
