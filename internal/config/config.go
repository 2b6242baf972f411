package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const DefaultMaxStudentsPerCourse = 20

type Config struct {
	Env       string          `mapstructure:"env"`
	Server    ServerConfig    `mapstructure:"server"`
	Grpc      GrpcConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Courses   CoursesConfig   `mapstructure:"courses"`
	Events    EventsConfig    `mapstructure:"events"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeout int      `mapstructure:"write_timeout_seconds"`
	IdleTimeout  int      `mapstructure:"idle_timeout_seconds"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// GrpcConfig enables the gRPC health server when Port is set.
type GrpcConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
}

type CoursesConfig struct {
	MaxStudentsPerCourse int `mapstructure:"max_students_per_course"`
}

type EventsConfig struct {
	// Driver is "nats", "kafka" or empty to disable publishing.
	Driver string      `mapstructure:"driver"`
	NATS   NATSConfig  `mapstructure:"nats"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

var defaultConfigPaths = []string{
	"/configs",   // Kubernetes mount
	"./configs",  // Docker runtime / repo root
	"../configs", // IDE from cmd/
}

// Load reads config.<ENV>.yaml from the given directories (or the default
// search path) and applies environment overrides on top.
func Load(paths ...string) (*Config, error) {
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}
	if len(paths) == 0 {
		paths = defaultConfigPaths
	}

	v := viper.New()
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	// Config file is optional - continue with ENV variables
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("server.port", "HTTP_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("courses.max_students_per_course", "MAX_STUDENTS_PER_COURSE")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Env = env

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "university")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "file:courses.db?cache=shared&_foreign_keys=on")
	v.SetDefault("courses.max_students_per_course", DefaultMaxStudentsPerCourse)
	v.SetDefault("events.nats.subject", "courses.events")
	v.SetDefault("events.kafka.topic", "courses.events")
}

func (c *Config) Validate() error {
	if c.Courses.MaxStudentsPerCourse < 1 {
		return fmt.Errorf("courses.max_students_per_course must be positive, got %d", c.Courses.MaxStudentsPerCourse)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Events.Driver {
	case "", "nats", "kafka":
	default:
		return fmt.Errorf("unsupported events driver %q", c.Events.Driver)
	}
	return nil
}
