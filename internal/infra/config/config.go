package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию ретранслятора.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"8000"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	Feedback struct {
		Duration          time.Duration `envconfig:"FEEDBACK_DURATION" default:"10s"`
		NonPositivePolicy string        `envconfig:"FEEDBACK_NONPOSITIVE_POLICY" default:"disabled"`
		DefaultMessage    string        `envconfig:"FEEDBACK_DEFAULT_MESSAGE" default:"💄 化粧してえらい！！"`
		TestMessage       string        `envconfig:"FEEDBACK_TEST_MESSAGE" default:"今日も化粧してえらい！！"`
		TestImage         string        `envconfig:"FEEDBACK_TEST_IMAGE" default:"/static/imgs/ikemenn.png"`
		TriggerOnLip      bool          `envconfig:"FEEDBACK_TRIGGER_ON_LIP" default:"false"`
		MaxBodyBytes      int64         `envconfig:"FEEDBACK_MAX_BODY_BYTES" default:"65536"`
	} `envconfig:""`

	Ingress struct {
		Mode        string        `envconfig:"INGRESS_MODE" default:"push"`
		DedupWindow time.Duration `envconfig:"DEDUP_WINDOW" default:"5s"`
	} `envconfig:""`

	Poll struct {
		Endpoint string        `envconfig:"POLL_ENDPOINT"`
		Interval time.Duration `envconfig:"POLL_INTERVAL" default:"10s"`
		Timeout  time.Duration `envconfig:"POLL_TIMEOUT" default:"3s"`
	} `envconfig:""`

	Stream struct {
		Buffer       int           `envconfig:"STREAM_BUFFER" default:"16"`
		PingInterval time.Duration `envconfig:"STREAM_PING_INTERVAL" default:"15s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL        string `envconfig:"AMQP_URL"`
		Exchange   string `envconfig:"AMQP_EXCHANGE" default:"feedback"`
		Queue      string `envconfig:"AMQP_QUEUE" default:"feedback-relay"`
		IngressKey string `envconfig:"AMQP_INGRESS_KEY" default:"feedback.submitted"`
		Workers    int    `envconfig:"AMQP_WORKERS" default:"1"`
		Publish    bool   `envconfig:"AMQP_PUBLISH" default:"true"`
	} `envconfig:""`

	Telegram struct {
		Token        string `envconfig:"TG_BOT_TOKEN"`
		NotifyChatID int64  `envconfig:"TG_NOTIFY_CHAT_ID"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает и проверяет конфиг без завершения процесса.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate проверяет значения, не зависящие от выбранных стратегий.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if strings.TrimSpace(c.Feedback.DefaultMessage) == "" {
		errs = append(errs, errors.New("FEEDBACK_DEFAULT_MESSAGE is empty"))
	}
	if c.Feedback.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("FEEDBACK_MAX_BODY_BYTES must be positive"))
	}
	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.Poll.Timeout <= 0 {
		errs = append(errs, errors.New("POLL_TIMEOUT must be positive"))
	}
	if c.Ingress.DedupWindow < 0 {
		errs = append(errs, errors.New("DEDUP_WINDOW must not be negative"))
	}
	if c.Telegram.Token != "" && c.Telegram.NotifyChatID == 0 {
		errs = append(errs, errors.New("TG_NOTIFY_CHAT_ID is required with TG_BOT_TOKEN"))
	}
	return errors.Join(errs...)
}

// Addr возвращает адрес основного HTTP сервера.
func (c AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
