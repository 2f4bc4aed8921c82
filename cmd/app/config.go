package main

import (
	"reflect"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Environment    string   `mapstructure:"ENVIRONMENT"`
	Version        string   `mapstructure:"VERSION"`
	TrustedOrigins []string `mapstructure:"TRUSTED_ORIGINS"`

	DBHost         string `mapstructure:"POSTGRES_HOST"`
	DBPort         string `mapstructure:"POSTGRES_PORT"`
	DBUser         string `mapstructure:"POSTGRES_USER"`
	DBPassword     string `mapstructure:"POSTGRES_PASSWORD"`
	DBName         string `mapstructure:"POSTGRES_DB"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`

	MQHost     string `mapstructure:"RABBITMQ_HOST"`
	MQPort     string `mapstructure:"RABBITMQ_PORT"`
	MQUser     string `mapstructure:"RABBITMQ_USER"`
	MQPassword string `mapstructure:"RABBITMQ_PASSWORD"`

	MailHost     string  `mapstructure:"MAIL_HOST"`
	MailPort     int     `mapstructure:"MAIL_PORT"`
	MailUser     string  `mapstructure:"MAIL_USER"`
	MailPassword string  `mapstructure:"MAIL_PASSWORD"`
	MailSender   string  `mapstructure:"MAIL_SENDER"`
	MailRate     float64 `mapstructure:"MAIL_RATE"`

	UploadDir      string        `mapstructure:"UPLOAD_DIR"`
	MaxUploadBytes int64         `mapstructure:"MAX_UPLOAD_BYTES"`
	TokenCacheTTL  time.Duration `mapstructure:"TOKEN_CACHE_TTL"`
}

// loadConfig reads the dotenv file at path. Environment variables override the file.
func loadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "4000")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("VERSION", "1.0.0")
	v.SetDefault("TRUSTED_ORIGINS", "")
	v.SetDefault("POSTGRES_PORT", "5432")
	v.SetDefault("MIGRATIONS_PATH", "")
	v.SetDefault("RABBITMQ_PORT", "5672")
	v.SetDefault("MAIL_PORT", 25)
	v.SetDefault("MAIL_RATE", 1.0)
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_UPLOAD_BYTES", 5<<20)
	v.SetDefault("TOKEN_CACHE_TTL", "5m")

	v.SetConfigFile(path)
	v.SetConfigType("env")

	// Unmarshal only sees keys viper knows about, so every field is bound even when the file omits it
	fields := reflect.TypeOf(Config{})
	for i := 0; i < fields.NumField(); i++ {
		if err := v.BindEnv(fields.Field(i).Tag.Get("mapstructure")); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	// the default decode hooks split TRUSTED_ORIGINS on commas and parse TOKEN_CACHE_TTL as a duration
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
