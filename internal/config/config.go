package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv      string `yaml:"app_env"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	DataDir       string `yaml:"data_dir"`

	SupabaseURL        string `yaml:"supabase_url"`
	SupabaseServiceKey string `yaml:"supabase_service_key"`
	SupabaseBucket     string `yaml:"supabase_bucket"`
	SupabaseJobsTable  string `yaml:"supabase_jobs_table"`

	LLMProvider     string `yaml:"llm_provider"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	DefaultLLMModel string `yaml:"default_llm_model"`
	ImageModel      string `yaml:"image_model"`

	SearchBaseURL        string `yaml:"search_base_url"`
	SearchRenderFallback bool   `yaml:"search_render_fallback"`

	YtDlpPath string `yaml:"ytdlp_path"`

	CredentialsDir      string `yaml:"credentials_dir"`
	PoolMinDelaySeconds int    `yaml:"pool_min_delay_seconds"`
	PoolMaxFails        int    `yaml:"pool_max_fails"`
	PoolBlockSeconds    int    `yaml:"pool_block_seconds"`

	FetchMaxRetries    int `yaml:"fetch_max_retries"`
	FetchBaseDelayMs   int `yaml:"fetch_base_delay_ms"`
	FetchConcurrency   int `yaml:"fetch_concurrency"`
	TaskMaxRetries     int `yaml:"task_max_retries"`
	ArtifactTTLMinutes int `yaml:"artifact_ttl_minutes"`
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func Load() Config {
	cfg := Config{
		AppEnv:      getenv("APP_ENV", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8082"),
		MetricsAddr: getenv("METRICS_ADDR", ":9091"),

		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DataDir:       getenv("DATA_DIR", "./data"),

		SupabaseURL:        os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", "exports"),
		SupabaseJobsTable:  getenv("SUPABASE_JOBS_TABLE", "video_jobs"),

		LLMProvider:     getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),
		ImageModel:      getenv("IMAGE_MODEL", "imagen-3.0-generate-002"),

		SearchBaseURL:        getenv("SEARCH_BASE_URL", "https://www.youtube.com"),
		SearchRenderFallback: getenvBool("SEARCH_RENDER_FALLBACK", false),

		YtDlpPath: getenv("YTDLP_PATH", "yt-dlp"),

		CredentialsDir:      getenv("CREDENTIALS_DIR", "./cookies"),
		PoolMinDelaySeconds: getenvInt("POOL_MIN_DELAY_SECONDS", 5),
		PoolMaxFails:        getenvInt("POOL_MAX_FAILS", 3),
		PoolBlockSeconds:    getenvInt("POOL_BLOCK_SECONDS", 300),

		FetchMaxRetries:    getenvInt("FETCH_MAX_RETRIES", 3),
		FetchBaseDelayMs:   getenvInt("FETCH_BASE_DELAY_MS", 2000),
		FetchConcurrency:   getenvInt("FETCH_CONCURRENCY", 6),
		TaskMaxRetries:     getenvInt("TASK_MAX_RETRIES", 0),
		ArtifactTTLMinutes: getenvInt("ARTIFACT_TTL_MINUTES", 20),
	}

	// Optional YAML overlay; env values above act as defaults so a partial
	// file only overrides what it names.
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			panic(fmt.Errorf("read config file %s: %w", path, err))
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			panic(fmt.Errorf("parse config file %s: %w", path, err))
		}
	}

	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	return cfg
}

func (c Config) PoolMinDelay() time.Duration   { return time.Duration(c.PoolMinDelaySeconds) * time.Second }
func (c Config) PoolBlock() time.Duration      { return time.Duration(c.PoolBlockSeconds) * time.Second }
func (c Config) FetchBaseDelay() time.Duration { return time.Duration(c.FetchBaseDelayMs) * time.Millisecond }
func (c Config) ArtifactTTL() time.Duration    { return time.Duration(c.ArtifactTTLMinutes) * time.Minute }
