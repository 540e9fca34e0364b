package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for payment-worker.
type Config struct {
	Port                 string        `mapstructure:"PORT" validate:"required"`
	RedisAddr            string        `mapstructure:"REDIS_ADDR" validate:"required"`
	RedisUsername        string        `mapstructure:"REDIS_USERNAME"`
	RedisPassword        string        `mapstructure:"REDIS_PASSWORD"`
	RedisUseTLS          bool          `mapstructure:"REDIS_USE_TLS"`
	QueueKeyPrefix       string        `mapstructure:"QUEUE_KEY_PREFIX" validate:"required"`
	PrimaryDbAddr        string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	MaxDbCons            int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons            int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	StartupRetryTimeout  time.Duration `mapstructure:"STARTUP_RETRY_TIMEOUT" validate:"required"`
	WorkerCount          int           `mapstructure:"WORKER_COUNT" validate:"min=1"`
	MaxConcurrentJobs    int           `mapstructure:"MAX_CONCURRENT_JOBS" validate:"min=1"`
	PollInterval         time.Duration `mapstructure:"POLL_INTERVAL" validate:"required"`
	ProcessTimeout       time.Duration `mapstructure:"PROCESS_TIMEOUT" validate:"required"`
	MaxConsecutiveErrors int           `mapstructure:"MAX_CONSECUTIVE_ERRORS" validate:"min=1"`
	BackoffUnit          time.Duration `mapstructure:"BACKOFF_UNIT" validate:"required"`
	MaxBackoff           time.Duration `mapstructure:"MAX_BACKOFF" validate:"required"`
	RestartCooldown      time.Duration `mapstructure:"RESTART_COOLDOWN" validate:"required"`
	StaleAfter           time.Duration `mapstructure:"STALE_AFTER" validate:"required"`
	AutoStartWorkers     bool          `mapstructure:"AUTO_START_WORKERS"`
	ReleaseLockOnFailure bool          `mapstructure:"RELEASE_LOCK_ON_FAILURE"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8081")
	viper.SetDefault("QUEUE_KEY_PREFIX", "payment")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("STARTUP_RETRY_TIMEOUT", "1m")
	viper.SetDefault("WORKER_COUNT", "2")
	viper.SetDefault("MAX_CONCURRENT_JOBS", "5")
	viper.SetDefault("POLL_INTERVAL", "1s")
	viper.SetDefault("PROCESS_TIMEOUT", "30s")
	viper.SetDefault("MAX_CONSECUTIVE_ERRORS", "5")
	viper.SetDefault("BACKOFF_UNIT", "1s")
	viper.SetDefault("MAX_BACKOFF", "30s")
	viper.SetDefault("RESTART_COOLDOWN", "30s")
	viper.SetDefault("STALE_AFTER", "30m")
	viper.SetDefault("AUTO_START_WORKERS", "true")
	viper.SetDefault("RELEASE_LOCK_ON_FAILURE", "true")

	// Optional: Read from config.yaml if exists
	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/payment-worker/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
