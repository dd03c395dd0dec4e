package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

// DefaultJWTSecret is the development signing secret shipped in config.yml.
const DefaultJWTSecret = "clave_secreta_por_defecto"

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type ServerConfig struct {
	HTTPPort        string        `mapstructure:"httpPort"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
	EnableDocs      bool          `mapstructure:"enableDocs"`
}

type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	SSLMode        string        `mapstructure:"sslMode"`
	MaxConns       int32         `mapstructure:"maxConns"`
	ConnectRetries int           `mapstructure:"connectRetries"`
	HealthTimeout  time.Duration `mapstructure:"healthTimeout"`
}

type JWTConfig struct {
	SecretKey      string        `mapstructure:"secretKey"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	AccessTokenTTL time.Duration `mapstructure:"accessTokenTTL"`
}

type PasswordConfig struct {
	BcryptCost int `mapstructure:"bcryptCost"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type ObservabilityConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"serviceName"`
	MetricsPort string `mapstructure:"metricsPort"`
}

type Config struct {
	Mode          string              `mapstructure:"mode"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Password      PasswordConfig      `mapstructure:"password"`
	CORS          CORSConfig          `mapstructure:"cors"`
	RateLimit     RateLimitConfig     `mapstructure:"rateLimit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// envAliases keeps the variable names used by existing deployments working.
var envAliases = map[string][]string{
	"mode":                  {"APP_ENV"},
	"server.httpPort":       {"SERVER_HTTPPORT", "PORT"},
	"database.driver":       {"DB_DRIVER"},
	"database.host":         {"DB_HOST", "MYSQL_HOST"},
	"database.port":         {"DB_PORT", "MYSQL_PORT"},
	"database.username":     {"DB_USER", "MYSQL_USER"},
	"database.password":     {"DB_PASSWORD", "MYSQL_PASSWORD"},
	"database.name":         {"DB_NAME", "MYSQL_DB"},
	"database.sslMode":      {"DB_SSLMODE"},
	"jwt.secretKey":         {"JWT_SECRET_KEY"},
	"jwt.issuer":            {"JWT_ISSUER"},
	"jwt.audience":          {"JWT_AUDIENCE"},
	"jwt.accessTokenTTL":    {"JWT_ACCESS_TOKEN_TTL"},
	"observability.enabled": {"OBSERVABILITY_ENABLED"},
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range envAliases {
		if err = v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate reports the first setting the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		return fmt.Errorf("invalid config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Host == "" {
		return errors.New("invalid config: database host is required")
	}
	if c.JWT.SecretKey == "" {
		return errors.New("invalid config: jwt secret key is required")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return errors.New("invalid config: jwt access token ttl must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return errors.New("invalid config: rate limit requests and window must be positive")
	}
	return nil
}

// IsDevelopment reports whether the service runs with developer defaults (colored logs).
func (c *Config) IsDevelopment() bool {
	return c.Mode == "" || c.Mode == "development"
}
