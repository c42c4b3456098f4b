package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Memory   MemoryConfig   `yaml:"memory"`
	Cost     CostConfig     `yaml:"cost"`
	Game     GameConfig     `yaml:"game"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `yaml:"mysql"`
	Redis RedisConfig `yaml:"redis"`
}

type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type AIConfig struct {
	// Backend selects the generation provider: openai, gemini,
	// gemini-cli or dummy.
	Backend   string          `yaml:"backend"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	GeminiCLI GeminiCLIConfig `yaml:"gemini_cli"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GeminiCLIConfig struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type MemoryConfig struct {
	MaxVectors          int     `yaml:"max_vectors"`
	SearchLimit         int     `yaml:"search_limit"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

type CostConfig struct {
	MonthlyLimitUSD float64 `yaml:"monthly_limit_usd"`
	RetentionMonths int     `yaml:"retention_months"`
}

type GameConfig struct {
	ScenarioFile   string        `yaml:"scenario_file"`
	ShortTermTurns int           `yaml:"short_term_turns"`
	RevealInterval time.Duration `yaml:"reveal_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	// Apply environment variable overrides
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.AI.OpenAI.APIKey = apiKey
		cfg.AI.Embedding.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		cfg.AI.Gemini.APIKey = apiKey
	}
	if pass := os.Getenv("REDIS_PASSWORD"); pass != "" {
		cfg.Database.Redis.Password = pass
	}
	if pass := os.Getenv("MYSQL_PASSWORD"); pass != "" {
		cfg.Database.MySQL.Password = pass
	}

	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with the built-in defaults
func (c *Config) ApplyDefaults() {
	if c.AI.Backend == "" {
		c.AI.Backend = "dummy"
	}
	if c.AI.OpenAI.Model == "" {
		c.AI.OpenAI.Model = "gpt-4o-mini"
	}
	if c.AI.OpenAI.Temperature == 0 {
		c.AI.OpenAI.Temperature = 0.8
	}
	if c.AI.Gemini.Model == "" {
		c.AI.Gemini.Model = "gemini-2.5-flash"
	}
	if c.AI.GeminiCLI.Command == "" {
		c.AI.GeminiCLI.Command = "gemini"
	}
	if c.AI.GeminiCLI.Timeout == 0 {
		c.AI.GeminiCLI.Timeout = 30 * time.Second
	}
	if c.AI.Embedding.Model == "" {
		c.AI.Embedding.Model = "text-embedding-3-small"
	}
	if c.Memory.MaxVectors == 0 {
		c.Memory.MaxVectors = 100
	}
	if c.Memory.SearchLimit == 0 {
		c.Memory.SearchLimit = 3
	}
	if c.Memory.SimilarityThreshold == 0 {
		c.Memory.SimilarityThreshold = 0.1
	}
	if c.Cost.MonthlyLimitUSD == 0 {
		c.Cost.MonthlyLimitUSD = 50
	}
	if c.Cost.RetentionMonths == 0 {
		c.Cost.RetentionMonths = 6
	}
	if c.Game.ScenarioFile == "" {
		c.Game.ScenarioFile = "scenarios/main_scenario.json"
	}
	if c.Game.ShortTermTurns == 0 {
		c.Game.ShortTermTurns = 5
	}
	if c.Game.RevealInterval == 0 {
		c.Game.RevealInterval = 1500 * time.Millisecond
	}
}
