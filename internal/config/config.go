package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	Telegram struct {
		Token      string
		TimeoutSec int `mapstructure:"timeout_sec"`
		Debug      bool
	} `mapstructure:"telegram"`

	// API — удалённый сервис инвентаря, единственный источник данных
	API struct {
		BaseURL   string        `mapstructure:"base_url"`
		LoginPath string        `mapstructure:"login_path"`
		Timeout   time.Duration // 0 = без явного таймаута
	} `mapstructure:"api"`

	Session struct {
		Storage string // postgres | memory
		Secret  string // пусто — токены хранятся без шифрования
	} `mapstructure:"session"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN        string
		Migrations string
	} `mapstructure:"postgres"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

func Load(path string) (Config, error) {
	// .env необязателен
	_ = gotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "prod")
	v.SetDefault("telegram.timeout_sec", 30)
	v.SetDefault("api.login_path", "/api/login/")
	v.SetDefault("api.timeout", 0)
	v.SetDefault("session.storage", StoragePostgres)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("postgres.migrations", "migrations")

	// ключи, которые должны подхватываться из ENV даже без упоминания в файле
	for _, k := range []string{"telegram.token", "api.base_url", "session.secret", "postgres.dsn"} {
		_ = v.BindEnv(k)
	}

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram.token is required"))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	switch c.Session.Storage {
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for postgres session storage"))
		}
	case StorageMemory:
	default:
		errs = append(errs, errors.New("session.storage must be postgres or memory"))
	}
	return errors.Join(errs...)
}
