package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/s3-presigner/pkg/presigner/signer"
)

// ServerConfig represents the presigner process configuration
type ServerConfig struct {
	Host string `yaml:"host" env:"PRESIGNER_HOST" env-default:"localhost" env-description:"Address to bind to"`
	Port int    `yaml:"port" env:"PRESIGNER_PORT" env-default:"8080" env-description:"Port to listen on"`

	// Request handling
	DefaultExpiresIn int   `yaml:"default_expires_in" env:"PRESIGNER_DEFAULT_EXPIRES_IN" env-default:"3600" env-description:"Expiration in seconds when the request does not give one"`
	MaxBodyBytes     int64 `yaml:"max_body_bytes" env:"PRESIGNER_MAX_BODY_BYTES" env-default:"1048576" env-description:"Largest accepted POST body"`
	LegacyStatus     bool  `yaml:"legacy_status" env:"PRESIGNER_LEGACY_STATUS" env-default:"false" env-description:"Answer client errors with 200 instead of 400"`

	// Logging
	Quiet     bool   `yaml:"quiet" env:"PRESIGNER_QUIET" env-default:"false" env-description:"Leave raw request bodies out of exchange logs"`
	LogFormat string `yaml:"log_format" env:"PRESIGNER_LOG_FORMAT" env-default:"text" env-description:"text or json"`
	LogLevel  string `yaml:"log_level" env:"PRESIGNER_LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`

	SkipCredentialCheck bool `yaml:"skip_credential_check" env:"PRESIGNER_SKIP_CREDENTIAL_CHECK" env-default:"false" env-description:"Start without verifying AWS credentials"`

	AWS AWSConfig `yaml:"aws"`
}

// AWSConfig holds the settings handed to the signer. Credentials left empty
// are resolved through the SDK's default chain.
type AWSConfig struct {
	Region          string        `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	Profile         string        `yaml:"profile" env:"AWS_PROFILE"`
	AccessKeyID     string        `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string        `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string        `yaml:"session_token" env:"AWS_SESSION_TOKEN"`
	Endpoint        string        `yaml:"endpoint" env:"AWS_S3_ENDPOINT"`
	UsePathStyle    bool          `yaml:"use_path_style" env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	SignTimeout     time.Duration `yaml:"sign_timeout" env:"PRESIGNER_SIGN_TIMEOUT" env-default:"5s"`
}

// Load reads the configuration from path when given, otherwise from the
// environment only. Environment variables override file values.
func Load(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency
func (c *ServerConfig) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DefaultExpiresIn <= 0 || c.DefaultExpiresIn > signer.MaxExpiresIn {
		return fmt.Errorf("default_expires_in must be between 1 and %d seconds", signer.MaxExpiresIn)
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log_format %q (use 'text' or 'json')", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.AWS.SignTimeout <= 0 {
		return errors.New("aws.sign_timeout must be positive")
	}
	if (c.AWS.AccessKeyID == "") != (c.AWS.SecretAccessKey == "") {
		return errors.New("aws access_key_id and secret_access_key must be set together")
	}
	return nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Level parses LogLevel
func (c *ServerConfig) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	return level, nil
}

// SignerConfig converts the AWS section into signer options
func (c *ServerConfig) SignerConfig() signer.Config {
	return signer.Config{
		Region:          c.AWS.Region,
		Profile:         c.AWS.Profile,
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		SessionToken:    c.AWS.SessionToken,
		Endpoint:        c.AWS.Endpoint,
		UsePathStyle:    c.AWS.UsePathStyle,
		Timeout:         c.AWS.SignTimeout,
	}
}
