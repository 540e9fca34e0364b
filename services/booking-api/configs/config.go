package configs

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/nimeshabuddhika/slot-payment-queue/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Port                string        `mapstructure:"PORT" validate:"required"`
	RedisAddr           string        `mapstructure:"REDIS_ADDR" validate:"required"`
	RedisUsername       string        `mapstructure:"REDIS_USERNAME"`
	RedisPassword       string        `mapstructure:"REDIS_PASSWORD"`
	RedisUseTLS         bool          `mapstructure:"REDIS_USE_TLS"`
	QueueKeyPrefix      string        `mapstructure:"QUEUE_KEY_PREFIX" validate:"required"`
	RequeueDelay        time.Duration `mapstructure:"REQUEUE_DELAY" validate:"required"`
	MaxRequeueAttempts  int           `mapstructure:"MAX_REQUEUE_ATTEMPTS"`
	StartupRetryTimeout time.Duration `mapstructure:"STARTUP_RETRY_TIMEOUT" validate:"required"`
	RateLimitPerSecond  int           `mapstructure:"RATE_LIMIT_PER_SECOND" validate:"min=0"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST" validate:"min=1"`
	GlobalRateLimit     int64         `mapstructure:"GLOBAL_RATE_LIMIT" validate:"min=0"`
	RateLimitWindow     time.Duration `mapstructure:"RATE_LIMIT_WINDOW" validate:"required"`
}

func Load(logger *zap.Logger) (*Config, error) {
	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	// Default values
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("QUEUE_KEY_PREFIX", "payment")
	viper.SetDefault("REQUEUE_DELAY", "5s")
	viper.SetDefault("MAX_REQUEUE_ATTEMPTS", "1")
	viper.SetDefault("STARTUP_RETRY_TIMEOUT", "1m")
	viper.SetDefault("RATE_LIMIT_PER_SECOND", "50")
	viper.SetDefault("RATE_LIMIT_BURST", "100")
	viper.SetDefault("GLOBAL_RATE_LIMIT", "500")
	viper.SetDefault("RATE_LIMIT_WINDOW", "1s")

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
	viper.AddConfigPath("./services/booking-api/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}
	// Validate after unmarshal
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
