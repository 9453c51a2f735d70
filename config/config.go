// Package config loads the run configuration from an optional YAML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"today_eat_what/llm"
	"today_eat_what/meal"
)

// EnvPrefix prefixes every generic override, e.g. TEW_PIPELINE_MAX_REWRITES.
const EnvPrefix = "TEW"

// Config is the whole configuration tree.
type Config struct {
	Agents    Agents             `mapstructure:"agents"`
	MCP       MCPConfig          `mapstructure:"mcp"`
	Publish   PublishConfig      `mapstructure:"publish"`
	Pipeline  PipelineConfig     `mapstructure:"pipeline"`
	Images    ImagesConfig       `mapstructure:"images"`
	Schedule  []WindowConfig     `mapstructure:"schedule"`
	Prices    map[string]float64 `mapstructure:"prices"`
	Server    ServerConfig       `mapstructure:"server"`
	Log       LogConfig          `mapstructure:"log"`
	Telemetry TelemetryConfig    `mapstructure:"telemetry"`
}

// Agents holds one model per agent. An empty api_key selects the agent's fallback path.
type Agents struct {
	Recipe  ModelConfig `mapstructure:"recipe"`
	Content ModelConfig `mapstructure:"content"`
	Audit   ModelConfig `mapstructure:"audit"`
	Image   ModelConfig `mapstructure:"image"`
}

type ModelConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	// Reply is the canned answer when Provider is mock.
	Reply string `mapstructure:"reply"`
}

// Settings converts to the llm package form.
func (m ModelConfig) Settings() llm.Settings {
	return llm.Settings{Provider: m.Provider, Model: m.Model, APIKey: m.APIKey, BaseURL: m.BaseURL, Reply: m.Reply}
}

// Options converts to per-call options.
func (m ModelConfig) Options() llm.Options {
	return llm.Options{Model: m.Model, Temperature: m.Temperature, MaxTokens: m.MaxTokens}
}

type MCPConfig struct {
	HowToCookURL   string        `mapstructure:"howtocook_url"`
	HowToCookTool  string        `mapstructure:"howtocook_tool"`
	XiaohongshuURL string        `mapstructure:"xiaohongshu_url"`
	PublishTool    string        `mapstructure:"publish_tool"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type PublishConfig struct {
	// Target is auto, mcp, http or dryrun. auto picks mcp, then http, then dryrun.
	Target     string        `mapstructure:"target"`
	HTTPURL    string        `mapstructure:"http_url"`
	HTTPToken  string        `mapstructure:"http_token"`
	TitleMax   int           `mapstructure:"title_max"`
	DefaultTag string        `mapstructure:"default_tag"`
	DigestMax  int           `mapstructure:"digest_max"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	Retries     int           `mapstructure:"retries"`
	Backoff     time.Duration `mapstructure:"backoff"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	MaxRewrites int           `mapstructure:"max_rewrites"`
	MinTags     int           `mapstructure:"min_tags"`
	PadTags     []string      `mapstructure:"pad_tags"`
}

// Policy is the per-call retry budget.
func (p PipelineConfig) Policy() llm.Policy {
	return llm.Policy{Retries: p.Retries, Backoff: p.Backoff, Timeout: p.CallTimeout}
}

type ImagesConfig struct {
	StepImages  int           `mapstructure:"step_images"`
	Timeout     time.Duration `mapstructure:"timeout"`
	JoinTimeout time.Duration `mapstructure:"join_timeout"`
	Concurrency int           `mapstructure:"concurrency"`
}

type WindowConfig struct {
	Start    string `mapstructure:"start"`
	Occasion string `mapstructure:"occasion"`
}

type ServerConfig struct {
	Addr       string        `mapstructure:"addr"`
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// envAliases binds the variable names used by existing deployments.
var envAliases = map[string][]string{
	"agents.recipe.api_key":   {"QWEN_API_KEY"},
	"agents.recipe.base_url":  {"QWEN_BASE_URL"},
	"agents.recipe.model":     {"QWEN_MODEL"},
	"agents.content.api_key":  {"DEEPSEEK_API_KEY"},
	"agents.content.base_url": {"DEEPSEEK_BASE_URL"},
	"agents.content.model":    {"DEEPSEEK_MODEL"},
	"agents.audit.api_key":    {"LONGCAT_API_KEY"},
	"agents.audit.base_url":   {"LONGCAT_BASE_URL"},
	"agents.audit.model":      {"LONGCAT_MODEL"},
	"agents.image.api_key":    {"DOUBAO_API_KEY"},
	"agents.image.base_url":   {"DOUBAO_BASE_URL"},
	"agents.image.model":      {"DOUBAO_MODEL"},
	"mcp.howtocook_url":       {"HOWTOCOOK_MCP_URL"},
	"mcp.xiaohongshu_url":     {"XIAOHONGSHU_MCP_URL"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agents.recipe.provider", "qwen")
	v.SetDefault("agents.recipe.base_url", "https://api.siliconflow.cn/v1")
	v.SetDefault("agents.recipe.model", "Qwen/Qwen2.5-7B-Instruct")
	v.SetDefault("agents.content.provider", "deepseek")
	v.SetDefault("agents.content.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("agents.content.model", "deepseek-chat")
	v.SetDefault("agents.content.temperature", 0.8)
	v.SetDefault("agents.audit.provider", "longcat")
	v.SetDefault("agents.audit.base_url", "https://api.longcat.chat/openai/v1")
	v.SetDefault("agents.audit.model", "LongCat-Flash-Chat")
	v.SetDefault("agents.audit.temperature", 0.0)
	v.SetDefault("agents.image.provider", "doubao")
	v.SetDefault("agents.image.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("agents.image.model", "doubao-seedream-3-0-t2i-250415")
	for _, agent := range []string{"recipe", "content", "audit", "image"} {
		v.SetDefault("agents."+agent+".api_key", "")
		v.SetDefault("agents."+agent+".max_tokens", 0)
		v.SetDefault("agents."+agent+".reply", "")
	}

	v.SetDefault("mcp.howtocook_url", "")
	v.SetDefault("mcp.howtocook_tool", "what_to_eat")
	v.SetDefault("mcp.xiaohongshu_url", "")
	v.SetDefault("mcp.publish_tool", "publish_content")
	v.SetDefault("mcp.timeout", 30*time.Second)

	v.SetDefault("publish.target", "auto")
	v.SetDefault("publish.http_url", "")
	v.SetDefault("publish.http_token", "")
	v.SetDefault("publish.title_max", 20)
	v.SetDefault("publish.default_tag", "今日吃什么")
	v.SetDefault("publish.digest_max", 120)
	v.SetDefault("publish.timeout", 60*time.Second)

	v.SetDefault("pipeline.retries", 2)
	v.SetDefault("pipeline.backoff", 500*time.Millisecond)
	v.SetDefault("pipeline.call_timeout", 30*time.Second)
	v.SetDefault("pipeline.max_rewrites", 2)
	v.SetDefault("pipeline.min_tags", 3)
	v.SetDefault("pipeline.pad_tags", []string{"美食", "家常菜", "今日吃什么", "简单食谱"})

	v.SetDefault("images.step_images", 3)
	v.SetDefault("images.timeout", 60*time.Second)
	v.SetDefault("images.join_timeout", 90*time.Second)
	v.SetDefault("images.concurrency", 4)

	v.SetDefault("schedule", []map[string]string{
		{"start": "06:00", "occasion": "breakfast"},
		{"start": "11:00", "occasion": "lunch"},
		{"start": "15:00", "occasion": "snack"},
		{"start": "17:00", "occasion": "dinner"},
		{"start": "22:00", "occasion": "snack"},
	})
	v.SetDefault("prices", map[string]float64{
		"qwen": 0.01, "deepseek": 0.02, "longcat": 0.005, "doubao": 0.03, "glm": 0.05,
	})

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.run_timeout", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("telemetry.enabled", false)
}

// Load reads .env (existing variables win), then path if set, then the environment.
// A missing .env is not an error; a missing explicit path is.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		args := append([]string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects budgets and schedules that cannot work. Missing credentials are fine.
func (c Config) Validate() error {
	var errs []error
	if c.Pipeline.Retries < 0 {
		errs = append(errs, errors.New("pipeline.retries must be >= 0"))
	}
	if c.Pipeline.MaxRewrites < 0 {
		errs = append(errs, errors.New("pipeline.max_rewrites must be >= 0"))
	}
	if c.Pipeline.MinTags < 0 {
		errs = append(errs, errors.New("pipeline.min_tags must be >= 0"))
	}
	if c.Pipeline.CallTimeout <= 0 {
		errs = append(errs, errors.New("pipeline.call_timeout must be > 0"))
	}
	if c.Images.StepImages < 0 {
		errs = append(errs, errors.New("images.step_images must be >= 0"))
	}
	if c.Images.JoinTimeout <= 0 {
		errs = append(errs, errors.New("images.join_timeout must be > 0"))
	}
	if c.Publish.TitleMax <= 0 {
		errs = append(errs, errors.New("publish.title_max must be > 0"))
	}
	switch c.Publish.Target {
	case "auto", "mcp", "http", "dryrun":
	default:
		errs = append(errs, fmt.Errorf("publish.target %q: want auto, mcp, http or dryrun", c.Publish.Target))
	}
	if c.Publish.Target == "mcp" && c.MCP.XiaohongshuURL == "" {
		errs = append(errs, errors.New("publish.target mcp needs mcp.xiaohongshu_url"))
	}
	if c.Publish.Target == "http" && c.Publish.HTTPURL == "" {
		errs = append(errs, errors.New("publish.target http needs publish.http_url"))
	}
	for vendor, price := range c.Prices {
		if price < 0 {
			errs = append(errs, fmt.Errorf("prices.%s must be >= 0", vendor))
		}
	}
	if _, err := c.MealSchedule(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MealSchedule builds the classifier windows.
func (c Config) MealSchedule() (meal.Schedule, error) {
	if len(c.Schedule) == 0 {
		return meal.DefaultSchedule(), nil
	}
	windows := make([]meal.Window, 0, len(c.Schedule))
	for i, w := range c.Schedule {
		start, err := meal.ParseClock(w.Start)
		if err != nil {
			return meal.Schedule{}, fmt.Errorf("schedule[%d]: %w", i, err)
		}
		occ, err := meal.ParseOccasion(w.Occasion)
		if err != nil {
			return meal.Schedule{}, fmt.Errorf("schedule[%d]: %w", i, err)
		}
		windows = append(windows, meal.Window{Start: start, Occasion: occ})
	}
	s, err := meal.NewSchedule(windows)
	if err != nil {
		return meal.Schedule{}, fmt.Errorf("schedule: %w", err)
	}
	return s, nil
}

// PublishTarget resolves "auto".
func (c Config) PublishTarget() string {
	if c.Publish.Target != "auto" {
		return c.Publish.Target
	}
	switch {
	case c.MCP.XiaohongshuURL != "":
		return "mcp"
	case c.Publish.HTTPURL != "":
		return "http"
	default:
		return "dryrun"
	}
}
