package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings 全局配置。
// 构造后不可变，注入到各组件（没有环境全局状态）。
type Settings struct {
	Log     LogConfig     `yaml:"log"`
	Kalshi  KalshiConfig  `yaml:"kalshi"`
	Poly    PolyConfig    `yaml:"polymarket"`
	Model   ModelConfig   `yaml:"model"`
	Risk    RiskConfig    `yaml:"risk"`
	Store   StoreConfig   `yaml:"store"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// KalshiConfig Kalshi API 配置
type KalshiConfig struct {
	APIKeyID      string `yaml:"api_key_id"`      // KALSHI-ACCESS-KEY 头
	PrivateKeyPEM string `yaml:"private_key_pem"` // RSA 私钥（PEM 文本或文件路径）
	BaseURL       string `yaml:"base_url"`
	WSURL         string `yaml:"ws_url"`
}

// PolyConfig Polymarket CLOB 配置
type PolyConfig struct {
	PrivateKey     string `yaml:"private_key"` // 钱包私钥（hex），或用助记词派生
	Mnemonic       string `yaml:"mnemonic"`
	DerivationPath string `yaml:"derivation_path"`
	ClobURL        string `yaml:"clob_url"`
	ChainID        int64  `yaml:"chain_id"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	APIPassphrase  string `yaml:"api_passphrase"`
}

// ModelConfig Capability 后端（LLM）配置
type ModelConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RiskConfig 风控限额
type RiskConfig struct {
	BetSizeLimit         float64 `yaml:"bet_size_limit"`         // 单笔下注上限（美元）
	MaxMarketExposure    float64 `yaml:"max_market_exposure"`    // 单市场在途敞口上限
	MaxPortfolioExposure float64 `yaml:"max_portfolio_exposure"` // 组合在途敞口上限
	MinConfidence        float64 `yaml:"min_confidence"`         // 信号最低置信度
	KellyFraction        float64 `yaml:"kelly_fraction"`         // 分数 Kelly 系数（0< f <=1）
}

// StoreConfig 存储路径
type StoreConfig struct {
	DataDir      string `yaml:"data_dir"`
	FeatureDBDir string `yaml:"feature_db_dir"` // badger 目录
	OrderDBPath  string `yaml:"order_db_path"`  // sqlite 文件
}

// RuntimeConfig pipeline 运行参数
type RuntimeConfig struct {
	StageTimeout         time.Duration `yaml:"stage_timeout"`
	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	MaxConcurrentMarkets int           `yaml:"max_concurrent_markets"`
	FeatureWindow        time.Duration `yaml:"feature_window"`
}

// MonitorConfig 健康监控 HTTP 配置
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load 加载配置：.env -> YAML 文件 -> 环境变量覆盖。
// path 为空时只用默认值 + 环境变量。
func Load(path string) (*Settings, error) {
	// .env 不存在时忽略（生产环境直接用真实环境变量）
	_ = godotenv.Load()

	s := defaults()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, s); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(s)

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func defaults() *Settings {
	return &Settings{
		Log: LogConfig{Level: "info"},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
			WSURL:   "wss://api.elections.kalshi.com/trade-api/ws/v2",
		},
		Poly: PolyConfig{
			ClobURL:        "https://clob.polymarket.com",
			ChainID:        137,
			DerivationPath: "m/44'/60'/0'/0/0",
		},
		Model: ModelConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
		},
		Risk: RiskConfig{
			BetSizeLimit:         100.0,
			MaxMarketExposure:    250.0,
			MaxPortfolioExposure: 1000.0,
			MinConfidence:        0.6,
			KellyFraction:        0.25,
		},
		Store: StoreConfig{
			DataDir:      "data",
			FeatureDBDir: "data/features",
			OrderDBPath:  "data/orders.db",
		},
		Runtime: RuntimeConfig{
			StageTimeout:         45 * time.Second,
			RetryAttempts:        3,
			RetryDelay:           time.Second,
			MaxConcurrentMarkets: 4,
			FeatureWindow:        24 * time.Hour,
		},
		Monitor: MonitorConfig{Enabled: true, Addr: ":8090"},
	}
}

func applyEnv(s *Settings) {
	setStr(&s.Kalshi.APIKeyID, "KALSHI_API_KEY_ID")
	setStr(&s.Kalshi.PrivateKeyPEM, "KALSHI_ACCESS_KEY")
	setStr(&s.Kalshi.BaseURL, "KALSHI_API_URL")
	setStr(&s.Poly.PrivateKey, "POLY_PRIVATE_KEY")
	setStr(&s.Poly.Mnemonic, "POLY_MNEMONIC")
	setStr(&s.Poly.APIKey, "POLY_API_KEY")
	setStr(&s.Poly.APISecret, "POLY_API_SECRET")
	setStr(&s.Poly.APIPassphrase, "POLY_API_PASSPHRASE")
	setStr(&s.Model.APIKey, "OPENAI_API_KEY")
	setStr(&s.Model.BaseURL, "OPENAI_BASE_URL")
	setStr(&s.Model.Model, "OPENAI_MODEL")
	setStr(&s.Log.Level, "LOG_LEVEL")
	setFloat(&s.Risk.BetSizeLimit, "BET_SIZE_LIMIT")
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// Validate 校验配置一致性
func (s *Settings) Validate() error {
	if s.Risk.BetSizeLimit <= 0 {
		return fmt.Errorf("risk.bet_size_limit must be > 0")
	}
	if s.Risk.MaxMarketExposure < s.Risk.BetSizeLimit {
		return fmt.Errorf("risk.max_market_exposure (%v) must be >= bet_size_limit (%v)",
			s.Risk.MaxMarketExposure, s.Risk.BetSizeLimit)
	}
	if s.Risk.MinConfidence < 0 || s.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be in [0,1]")
	}
	if s.Risk.KellyFraction <= 0 || s.Risk.KellyFraction > 1 {
		return fmt.Errorf("risk.kelly_fraction must be in (0,1]")
	}
	if s.Runtime.RetryAttempts < 1 {
		return fmt.Errorf("runtime.retry_attempts must be >= 1")
	}
	if s.Runtime.StageTimeout <= 0 {
		return fmt.Errorf("runtime.stage_timeout must be > 0")
	}
	return nil
}
