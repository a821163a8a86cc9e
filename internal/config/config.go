package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Jira      JiraConfig      `mapstructure:"jira"`
	Lifecycle ServiceClient   `mapstructure:"lifecycle"`
	Owner     ServiceClient   `mapstructure:"owner"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type JiraConfig struct {
	BaseURL            string           `mapstructure:"base_url"`
	Username           string           `mapstructure:"username"`
	Token              string           `mapstructure:"token"`
	ProjectKey         string           `mapstructure:"project_key"`
	Timeout            time.Duration    `mapstructure:"timeout"`
	ReopenTransitionID string           `mapstructure:"reopen_transition_id"`
	ReopenComment      string           `mapstructure:"reopen_comment"`
	ContractValue      string           `mapstructure:"contract_value"`
	Fields             JiraCustomFields `mapstructure:"fields"`
}

// JiraCustomFields идентификаторы custom-полей проекта, пустое значение отключает поле
type JiraCustomFields struct {
	OrgFiscalCode string `mapstructure:"org_fiscal_code"`
	OrgName       string `mapstructure:"org_name"`
	DelegateName  string `mapstructure:"delegate_name"`
	DelegateEmail string `mapstructure:"delegate_email"`
	Contract      string `mapstructure:"contract"`
}

// ServiceClient адрес внешнего HTTP-сервиса
type ServiceClient struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers     []string      `mapstructure:"brokers"`
	Topic       string        `mapstructure:"topic"`
	GroupID     string        `mapstructure:"group_id"`
	PoisonTopic string        `mapstructure:"poison_topic"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// Enabled консьюмер запускается, только если заданы брокеры и топик
func (c *KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

type ReconcileConfig struct {
	PageSize       int    `mapstructure:"page_size"`
	Schedule       string `mapstructure:"schedule"`
	LegacySchedule string `mapstructure:"legacy_schedule"`
	LegacyEnabled  bool   `mapstructure:"legacy_enabled"`
}

// Load загружает конфигурацию из config.yaml и переопределяет значения из переменных окружения.
// Переменные из .env подхватываются до чтения окружения, уже выставленные не перезаписываются
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("jira.timeout", 10*time.Second)
	v.SetDefault("lifecycle.timeout", 10*time.Second)
	v.SetDefault("owner.timeout", 10*time.Second)

	v.SetDefault("kafka.group_id", "service-review")
	v.SetDefault("kafka.max_attempts", 5)
	v.SetDefault("kafka.backoff", time.Second)

	v.SetDefault("reconcile.page_size", 100)
	v.SetDefault("reconcile.schedule", "*/5 * * * *")
	v.SetDefault("reconcile.legacy_schedule", "0 * * * *")
}

// bindEnvVariables явно связывает переменные окружения с ключами конфига
func bindEnvVariables(v *viper.Viper) {
	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")

	// Server
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.port", "SERVER_PORT")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")

	// Jira
	v.BindEnv("jira.base_url", "JIRA_URL")
	v.BindEnv("jira.username", "JIRA_USERNAME")
	v.BindEnv("jira.token", "JIRA_TOKEN")
	v.BindEnv("jira.project_key", "JIRA_PROJECT_KEY")

	// Внешние сервисы
	v.BindEnv("lifecycle.base_url", "LIFECYCLE_URL")
	v.BindEnv("owner.base_url", "OWNER_URL")

	// Kafka
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	v.BindEnv("kafka.poison_topic", "KAFKA_POISON_TOPIC")
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	// Курсор синхронизации держит соединение весь прогон, обновлениям строк нужно еще хотя бы одно
	if c.Database.MaxConns < 2 {
		errs = append(errs, errors.New("database.max_conns must be at least 2"))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, errors.New("database.min_conns must not exceed database.max_conns"))
	}
	if c.Jira.BaseURL == "" {
		errs = append(errs, errors.New("jira.base_url is required"))
	}
	if c.Jira.ProjectKey == "" {
		errs = append(errs, errors.New("jira.project_key is required"))
	}
	if c.Reconcile.PageSize <= 0 {
		errs = append(errs, errors.New("reconcile.page_size must be positive"))
	}
	if c.Kafka.Enabled() && c.Kafka.MaxAttempts <= 0 {
		errs = append(errs, errors.New("kafka.max_attempts must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetDSN возвращает строку подключения к PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress возвращает адрес сервера в формате host:port
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
