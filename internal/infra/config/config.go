package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	OpenAI struct {
		APIKey    string `envconfig:"OPENAI_API_KEY"`
		Model     string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		MaxTokens int    `envconfig:"OPENAI_MAX_TOKENS" default:"500"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	Fetch struct {
		// GlobalRPS — общий лимит запросов к t.me на все циклы опроса.
		GlobalRPS    int           `envconfig:"FETCH_RPS" default:"4"`
		PageCacheTTL time.Duration `envconfig:"FETCH_PAGE_CACHE_TTL" default:"5s"`
	} `envconfig:""`

	Tracking struct {
		CheckInterval time.Duration `envconfig:"CHECK_INTERVAL" default:"10s"`
		// PostLimit — глубина выборки для устоявшегося канала.
		PostLimit int `envconfig:"POST_LIMIT" default:"8"`
		// NewChannelPostLimit — глубина первой выборки нового канала.
		NewChannelPostLimit int `envconfig:"NEW_CHANNEL_POST_LIMIT" default:"5"`
		// BootstrapSampleLimit — выборка для генерации описаний при добавлении.
		BootstrapSampleLimit int `envconfig:"BOOTSTRAP_SAMPLE_LIMIT" default:"30"`
	} `envconfig:""`

	Queues struct {
		Digest string `envconfig:"DIGEST_QUEUE_KEY" default:"digest_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
