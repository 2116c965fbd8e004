package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string `env:"DATABASE_DSN,required=true"`
	RedisURL           string `env:"REDIS_URL,required=true"`
	RabbitMQURL        string `env:"RABBITMQ_URL,required=true"`
	VoiceAPIURL        string `env:"VOICE_API_URL,required=true"`
	VoiceAPIKey        string `env:"VOICE_API_KEY,required=true"`
	SMSAPIURL          string `env:"SMS_API_URL,required=true"`
	SMSAPIKey          string `env:"SMS_API_KEY,required=true"`
	AccountingAPIURL   string `env:"ACCOUNTING_API_URL,required=true"`
	WebhookSecret      string `env:"WEBHOOK_SECRET,required=true"`
	SchedulerInterval  int    `env:"SCHEDULER_INTERVAL_SEC,default=60"`
	SchedulerBatchSize int    `env:"SCHEDULER_BATCH_LIMIT,default=100"`
	SweepInterval      int    `env:"SWEEP_INTERVAL_SEC,default=60"`
	DispatchRatePerSec int    `env:"DISPATCH_RATE_PER_SEC,default=10"`
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
