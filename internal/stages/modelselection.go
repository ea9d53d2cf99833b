package stages

import (
	"context"
	"fmt"

	"github.com/predictbot/gopredict/internal/agent"
	"github.com/predictbot/gopredict/internal/capability"
	"github.com/predictbot/gopredict/internal/domain"
)

// candidateModels 备选模型族
var candidateModels = []string{"lightgbm", "xgboost", "neural_network", "random_forest"}

// ModelSelection 选型阶段：根据特征形态推荐模型架构与超参。
type ModelSelection struct {
	*agent.Base
}

// NewModelSelection 创建选型阶段 agent
func NewModelSelection(inv capability.Invoker) (*ModelSelection, error) {
	base, err := agent.NewBase("model_selection", inv, []agent.PromptTool{
		{
			Name:        "recommend_model_architecture",
			Description: "Recommend optimal model architecture for given data",
			InputSchema: map[string]string{
				"features_description":     "string",
				"target_variable":          "string",
				"data_size":                "number",
				"performance_requirements": "object",
			},
			OutputSchema: map[string]string{
				"recommended_models":     "array",
				"model_rankings":         "object",
				"architecture_rationale": "string",
			},
			Template: `You are an ML expert specializing in model architecture selection. Recommend optimal models for:

Features Description:
{features_description}

Target Variable:
{target_variable}

Data Size:
{data_size} samples

Performance Requirements:
{performance_requirements}

Consider feature types, training size, inference speed and
interpretability for a prediction market domain. Rank the top candidates.

Format as JSON:
{"recommended_models": [{"name": "lightgbm", "expected_performance": 0.85}], "model_rankings": {"lightgbm": 0.92}, "architecture_rationale": "..."}`,
		},
		{
			Name:        "optimize_hyperparameters",
			Description: "Optimize hyperparameters for selected model",
			InputSchema: map[string]string{
				"model_type":              "string",
				"feature_characteristics": "object",
				"validation_strategy":     "string",
				"optimization_objective":  "string",
			},
			OutputSchema: map[string]string{
				"optimal_params":       "object",
				"search_strategy":      "string",
				"expected_improvement": "number",
			},
			Template: `You are a hyperparameter optimization expert. Optimize parameters for:

Model Type:
{model_type}

Feature Characteristics:
{feature_characteristics}

Validation Strategy:
{validation_strategy}

Optimization Objective:
{optimization_objective}

Weigh parameter importance, overfitting prevention and training
efficiency.

Format as JSON:
{"optimal_params": {"n_estimators": 800, "learning_rate": 0.03, "max_depth": 7}, "search_strategy": "bayesian_optimization", "expected_improvement": 0.03}`,
		},
	})
	if err != nil {
		return nil, err
	}
	return &ModelSelection{Base: base}, nil
}

type modelRecommendation struct {
	RecommendedModels []struct {
		Name                string  `json:"name"`
		ExpectedPerformance float64 `json:"expected_performance"`
	} `json:"recommended_models"`
	ModelRankings map[string]float64 `json:"model_rankings"`
	Rationale     string             `json:"architecture_rationale"`
}

type hyperparameterResult struct {
	OptimalParams       map[string]float64 `json:"optimal_params"`
	SearchStrategy      string             `json:"search_strategy"`
	ExpectedImprovement float64            `json:"expected_improvement"`
}

// Process 选择模型。输入需含 "features"（domain.FeatureBatch）；
// 输出写入 "model_name" 与 "model_params"。
// 推荐结果不在备选族内时回退到排名最高的备选模型。
func (a *ModelSelection) Process(ctx context.Context, input agent.Payload) (agent.Payload, error) {
	return a.Track(ctx, input, func(ctx context.Context, input agent.Payload) (agent.Payload, error) {
		batch, ok := input["features"].(domain.FeatureBatch)
		if !ok {
			return nil, fmt.Errorf("model_selection: input missing features")
		}

		raw, err := a.GenerateWithPrompt(ctx, "recommend_model_architecture", map[string]interface{}{
			"features_description": fmt.Sprintf("%d numerical features: %v", len(batch.Vector), featureColumns),
			"target_variable":      "market_outcome_probability",
			"data_size":            10000,
			"performance_requirements": map[string]interface{}{
				"accuracy_threshold": 0.80,
				"inference_time_ms":  100,
				"interpretability":   "medium",
			},
		})
		if err != nil {
			return nil, err
		}
		var rec modelRecommendation
		if err := capability.DecodeJSON(raw, &rec); err != nil {
			return nil, err
		}

		modelName := pickModel(rec)

		raw, err = a.GenerateWithPrompt(ctx, "optimize_hyperparameters", map[string]interface{}{
			"model_type": modelName,
			"feature_characteristics": map[string]interface{}{
				"feature_count":      len(batch.Vector),
				"numerical_features": len(batch.Vector),
			},
			"validation_strategy":    "time_series_split",
			"optimization_objective": "auc_roc",
		})
		if err != nil {
			return nil, err
		}
		var hp hyperparameterResult
		if err := capability.DecodeJSON(raw, &hp); err != nil {
			return nil, err
		}

		a.SetStateData("selected_model", modelName)

		out := clonePayload(input)
		out["model_name"] = modelName
		out["model_params"] = hp.OptimalParams
		return out, nil
	})
}

// pickModel 在备选族内选排名最高的推荐模型
func pickModel(rec modelRecommendation) string {
	best, bestScore := candidateModels[0], -1.0
	for _, m := range rec.RecommendedModels {
		if !isCandidate(m.Name) {
			continue
		}
		score := m.ExpectedPerformance
		if r, ok := rec.ModelRankings[m.Name]; ok && r > score {
			score = r
		}
		if score > bestScore {
			best, bestScore = m.Name, score
		}
	}
	return best
}

func isCandidate(name string) bool {
	for _, c := range candidateModels {
		if c == name {
			return true
		}
	}
	return false
}
