package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ストアのバックエンド種別
const (
	StoreMemory    = "memory"
	StorePebble    = "pebble"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

// Config は環境変数（および任意のYAMLファイル）から読み込まれるアプリケーション設定を表します
type Config struct {
	// 基本設定
	Port     string `yaml:"port"`
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`
	Version  string `yaml:"version"`

	// 取り込み設定
	TargetGroup       string `yaml:"target_group"`
	RequireTeamFields bool   `yaml:"require_team_fields"`

	// ストア設定
	StoreBackend  string `yaml:"store_backend"`
	StoreFallback string `yaml:"store_fallback"`
	PebblePath    string `yaml:"pebble_path"`
	DatabaseURL   string `yaml:"database_url"`

	// Firestore設定
	GcpProject          string `yaml:"gcp_project"`
	FirestoreProjectID  string `yaml:"firestore_project_id"`
	CollectionProjects  string `yaml:"fs_collection_projects"`
	CollectionReactions string `yaml:"fs_collection_reactions"`
	CollectionReplies   string `yaml:"fs_collection_replies"`

	// Whapi設定
	WhapiBaseURL string `yaml:"whapi_base_url"`
	WhapiToken   string `yaml:"-"` // 環境変数 または Secret Manager から読み込み

	// ポーリング設定
	PollEnabled bool   `yaml:"poll_enabled"`
	PollCron    string `yaml:"poll_cron"`
	PollLimit   int    `yaml:"poll_limit"`

	// Webhook設定
	WebhookSecret string `yaml:"-"` // 環境変数 または Secret Manager から読み込み

	// レート制限設定
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`

	// TrustProxy はリバースプロキシの X-Forwarded-For を信頼するか
	TrustProxy bool `yaml:"trust_proxy"`
}

// Secret Manager 上のシークレット名
const (
	SecretWebhook = "whapi-webhook-secret"
	SecretWhapi   = "whapi-token"
)

// SecretGetter はシークレット値を取得するインターフェースです
type SecretGetter interface {
	GetSecret(ctx context.Context, secretName string) (string, error)
}

// Defaults は既定値の設定を返します
func Defaults() *Config {
	return &Config{
		Port:                "8080",
		AppEnv:              "development",
		LogLevel:            "info",
		Version:             "1.0.0",
		TargetGroup:         "HackTillDawn Final Participants",
		RequireTeamFields:   true,
		StoreBackend:        StoreMemory,
		PebblePath:          "data/gallery",
		CollectionProjects:  "projects",
		CollectionReactions: "reactions",
		CollectionReplies:   "replies",
		WhapiBaseURL:        "https://gate.whapi.cloud",
		PollEnabled:         false,
		PollCron:            "* * * * *",
		PollLimit:           50,
		RateLimitRPS:        2,
		RateLimitBurst:      20,
	}
}

// NewConfig は .env、GALLERY_CONFIG_FILE（YAML）、環境変数の順に設定を重ねて読み込みます
func NewConfig() (*Config, error) {
	// .env がなくてもエラーにしない
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("GALLERY_CONFIG_FILE"); path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML はYAMLファイルの値で設定を上書きします
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイル読み込み失敗 (path=%s): %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("設定ファイル解析失敗 (path=%s): %w", path, err)
	}
	return nil
}

// applyEnv は設定済みの環境変数で値を上書きします
func (c *Config) applyEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Version = getEnv("APP_VERSION", c.Version)

	c.TargetGroup = getEnv("TARGET_GROUP", c.TargetGroup)

	c.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", c.StoreBackend))
	c.StoreFallback = strings.ToLower(getEnv("STORE_FALLBACK", c.StoreFallback))
	c.PebblePath = getEnv("PEBBLE_PATH", c.PebblePath)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)

	c.GcpProject = getEnv("GCP_PROJECT", c.GcpProject)
	c.FirestoreProjectID = getEnv("FIRESTORE_PROJECT_ID", c.FirestoreProjectID)
	c.CollectionProjects = getEnv("FS_COLLECTION_PROJECTS", c.CollectionProjects)
	c.CollectionReactions = getEnv("FS_COLLECTION_REACTIONS", c.CollectionReactions)
	c.CollectionReplies = getEnv("FS_COLLECTION_REPLIES", c.CollectionReplies)

	c.WhapiBaseURL = getEnv("WHAPI_BASE_URL", c.WhapiBaseURL)
	c.WhapiToken = getEnv("WHAPI_TOKEN", c.WhapiToken)
	c.PollCron = getEnv("POLL_CRON", c.PollCron)
	c.WebhookSecret = getEnv("WEBHOOK_SECRET", c.WebhookSecret)

	var err error
	if c.RequireTeamFields, err = getEnvBool("REQUIRE_TEAM_FIELDS", c.RequireTeamFields); err != nil {
		return err
	}
	if c.PollEnabled, err = getEnvBool("POLL_ENABLED", c.PollEnabled); err != nil {
		return err
	}
	if c.TrustProxy, err = getEnvBool("TRUST_PROXY", c.TrustProxy); err != nil {
		return err
	}
	if c.PollLimit, err = getEnvInt("POLL_LIMIT", c.PollLimit); err != nil {
		return err
	}
	if c.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", c.RateLimitBurst); err != nil {
		return err
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS format: %v", err)
		}
		c.RateLimitRPS = rps
	}

	if c.FirestoreProjectID == "" {
		c.FirestoreProjectID = c.GcpProject
	}
	return nil
}

// Validate は設定値の整合性を検証します
func (c *Config) Validate() error {
	if !isKnownBackend(c.StoreBackend) {
		return fmt.Errorf("不明な STORE_BACKEND です: %s", c.StoreBackend)
	}
	if c.StoreFallback != "" {
		if !isKnownBackend(c.StoreFallback) {
			return fmt.Errorf("不明な STORE_FALLBACK です: %s", c.StoreFallback)
		}
		if c.StoreFallback == c.StoreBackend {
			return errors.New("STORE_FALLBACK は STORE_BACKEND と異なる必要があります")
		}
	}
	if usesBackend(c, StorePostgres) && c.DatabaseURL == "" {
		return errors.New("postgres ストアには DATABASE_URL が必要です")
	}
	if usesBackend(c, StoreFirestore) && c.FirestoreProjectID == "" {
		return errors.New("firestore ストアには FIRESTORE_PROJECT_ID か GCP_PROJECT が必要です")
	}
	if usesBackend(c, StorePebble) && c.PebblePath == "" {
		return errors.New("pebble ストアには PEBBLE_PATH が必要です")
	}
	if c.PollLimit <= 0 {
		return fmt.Errorf("POLL_LIMIT は0より大きい必要があります: %d", c.PollLimit)
	}
	return nil
}

// ResolveSecrets は未設定のシークレットを Secret Manager から補完します
// GCP_PROJECT が未設定の場合は何もしません
func (c *Config) ResolveSecrets(ctx context.Context, sg SecretGetter) error {
	if c.GcpProject == "" || sg == nil {
		return nil
	}

	if c.WebhookSecret == "" {
		v, err := sg.GetSecret(ctx, SecretWebhook)
		if err != nil {
			return fmt.Errorf("WEBHOOK_SECRET 取得失敗: %w", err)
		}
		c.WebhookSecret = v
	}

	if c.WhapiToken == "" && c.PollEnabled {
		v, err := sg.GetSecret(ctx, SecretWhapi)
		if err != nil {
			return fmt.Errorf("WHAPI_TOKEN 取得失敗: %w", err)
		}
		c.WhapiToken = v
	}
	return nil
}

// IsProduction は本番環境かを判定します
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func isKnownBackend(b string) bool {
	switch b {
	case StoreMemory, StorePebble, StorePostgres, StoreFirestore:
		return true
	}
	return false
}

func usesBackend(c *Config, b string) bool {
	return c.StoreBackend == b || c.StoreFallback == b
}

// getEnv は環境変数を取得し、未設定の場合は fallback を返します
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format: %v", key, err)
	}
	return i, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s format: %v", key, err)
	}
	return b, nil
}
