package domain

import "time"

// FeatureBatch 特征批次（特征工程阶段产出，写入后不可变）
type FeatureBatch struct {
	BatchID   string            // 唯一批次 ID
	MarketID  string            // 所属市场
	Timestamp time.Time         // 特征对应的时间点
	Vector    []float64         // 特征向量（用于相似度检索）
	Columns   map[string]float64 // 表格特征（列名 -> 值）
	Metadata  map[string]string  // 自由元数据（来源阶段、版本等）
}

// ScoredBatch 带相似度分数的批次（Retrieve 返回，按分数降序）
type ScoredBatch struct {
	Batch FeatureBatch
	Score float64
}
