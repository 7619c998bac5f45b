package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"dev"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Exchange struct {
		RestURL        string        `yaml:"rest_url" validate:"required"`
		WebSocketURL   string        `yaml:"websocket_url" validate:"required"`
		APIKey         string        `yaml:"api_key"`
		APISecret      string        `yaml:"api_secret"`
		Symbols        []string      `yaml:"symbols" validate:"min=1"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"2s"`
		MaxReconnects  int           `yaml:"max_reconnects" default:"10"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"15s"`
	} `yaml:"exchange"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic" default:"tradefuse.ticks"`
		EventsTopic  string   `yaml:"events_topic" default:"tradefuse.decisions"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"500ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"tradefuse"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"1024"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"tradefuse"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Pipeline struct {
		Timeframe     string        `yaml:"timeframe" default:"1m"`
		Lookback      int           `yaml:"lookback" default:"250"`
		Interval      time.Duration `yaml:"interval" default:"30s"`
		StaleDriftPct float64       `yaml:"stale_drift_pct" default:"0.5"`
	} `yaml:"pipeline"`
	Indicators struct {
		SMAWindows []int   `yaml:"sma_windows"`
		EMAWindow  int     `yaml:"ema_window" default:"20"`
		RSIPeriod  int     `yaml:"rsi_period" default:"14"`
		BBWindow   int     `yaml:"bb_window" default:"20"`
		BBStdDev   float64 `yaml:"bb_stddev" default:"2.0"`
		ATRPeriod  int     `yaml:"atr_period" default:"14"`
	} `yaml:"indicators"`
	Ensemble struct {
		ServiceURL    string        `yaml:"service_url"`
		Timeout       time.Duration `yaml:"timeout" default:"3s"`
		MinQuorum     int           `yaml:"min_quorum" default:"2" validate:"gte=1"`
		MaxConcurrent int           `yaml:"max_concurrent" default:"2" validate:"gte=1"`
		Models        []ModelConfig `yaml:"models" validate:"dive"`
	} `yaml:"ensemble"`
	Advisor struct {
		URL          string        `yaml:"url" default:"https://api.openai.com/v1/chat/completions"`
		APIKeyEnv    string        `yaml:"api_key_env" default:"ADVISOR_API_KEY"`
		Model        string        `yaml:"model" default:"gpt-4o-mini"`
		Timeout      time.Duration `yaml:"timeout" default:"20s"`
		Temperature  float64       `yaml:"temperature" default:"0.1"`
		MaxTokens    int           `yaml:"max_tokens" default:"256"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"60s"`
		MaxPerMinute int           `yaml:"max_per_minute" default:"6"`
	} `yaml:"advisor"`
	Fusion struct {
		IndicatorWeight float64 `yaml:"indicator_weight" default:"0.3" validate:"gte=0,lte=1"`
		ModelWeight     float64 `yaml:"model_weight" default:"0.5" validate:"gte=0,lte=1"`
		AdvisorWeight   float64 `yaml:"advisor_weight" default:"0.2" validate:"gte=0,lte=1"`
	} `yaml:"fusion"`
	Risk struct {
		Equity            float64       `yaml:"equity" default:"10000"`
		RiskPct           float64       `yaml:"risk_pct" default:"1.0" validate:"gt=0,lte=100"`
		StopATRMult       float64       `yaml:"stop_atr_mult" default:"2.0"`
		MaxSymbolNotional float64       `yaml:"max_symbol_notional" default:"5000"`
		MaxTotalNotional  float64       `yaml:"max_total_notional" default:"20000"`
		MinConfidence     float64       `yaml:"min_confidence" default:"0.2" validate:"gte=0,lte=1"`
		MaxDrawdownPct    float64       `yaml:"max_drawdown_pct" default:"20" validate:"gte=0,lte=100"`
		FlipCooldown      time.Duration `yaml:"flip_cooldown" default:"10m"`
	} `yaml:"risk"`
	Execution struct {
		RetryMax         int           `yaml:"retry_max" default:"3"`
		BackoffMin       time.Duration `yaml:"backoff_min" default:"250ms"`
		BackoffMax       time.Duration `yaml:"backoff_max" default:"5s"`
		FillPollInterval time.Duration `yaml:"fill_poll_interval" default:"5s"`
	} `yaml:"execution"`
	Guard struct {
		Enabled          bool          `yaml:"enabled"`
		CheckInterval    time.Duration `yaml:"check_interval" default:"5m"`
		Lookback         int           `yaml:"lookback" default:"120"`
		ReturnZ          float64       `yaml:"return_z" default:"3.5"`
		VolumeZ          float64       `yaml:"volume_z" default:"5.0"`
		MaxAlertsPerDay  int           `yaml:"max_alerts_per_day" default:"3"`
		AlertCooldown    time.Duration `yaml:"alert_cooldown" default:"1h"`
		FeedDownRetries  int           `yaml:"feed_down_retries" default:"5"`
		ConsecutiveFails int           `yaml:"consecutive_fails" default:"5"`
	} `yaml:"guard"`
	Notify struct {
		Enabled      bool          `yaml:"enabled"`
		BotTokenEnv  string        `yaml:"bot_token_env" default:"TELEGRAM_BOT_TOKEN"`
		ChatIDs      []string      `yaml:"chat_ids"`
		Cooldown     time.Duration `yaml:"cooldown" default:"30s"`
		QueueName    string        `yaml:"queue_name" default:"tradefuse:notify"`
		QueueWorkers int           `yaml:"queue_workers" default:"1"`
	} `yaml:"notify"`
}

// ModelConfig describes one predictor of the ensemble.
type ModelConfig struct {
	Name     string  `yaml:"name" validate:"required"`
	Kind     string  `yaml:"kind" validate:"required,oneof=classify regress"`
	Scale    float64 `yaml:"scale" default:"1.0"`
	Disabled bool    `yaml:"disabled"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, applies struct defaults
// and validates required fields.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides secrets from the
// environment. Only credentials are overridable, everything else lives in
// the file.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	return c, nil
}

// FusionWeights returns the configured weight per producer class.
func (c *Config) FusionWeights() map[string]float64 {
	return map[string]float64{
		"indicator": c.Fusion.IndicatorWeight,
		"model":     c.Fusion.ModelWeight,
		"advisor":   c.Fusion.AdvisorWeight,
	}
}
