package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/logbook/internal/db"
	"github.com/rpattn/logbook/internal/domain"
	"github.com/rpattn/logbook/internal/logging"

	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	Server struct {
		Addr         string
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
	}
	Database       db.Config
	StorageDriver  string
	LockTTL        time.Duration
	SearchIndexTTL time.Duration
	SearchLimit    int
	AttachmentsDir string
	Logging        logging.Config
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)
	v.SetDefault("storage.driver", StoragePostgres)
	v.SetDefault("locks.ttl", domain.DefaultLockTTL)
	v.SetDefault("search.index_ttl", 30*time.Second)
	v.SetDefault("search.default_limit", 50)
	v.SetDefault("attachments.dir", "./attachments")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

// Load reads config.yaml from configPath when present and applies LOGBOOK_*
// environment overrides, e.g. LOGBOOK_DATABASE_HOST.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("LOGBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Database = db.Config{
		Host:     v.GetString("database.host"),
		Port:     v.GetInt("database.port"),
		User:     v.GetString("database.user"),
		Password: v.GetString("database.password"),
		DBName:   v.GetString("database.dbname"),
		SSLMode:  v.GetString("database.sslmode"),
		MaxConns: v.GetInt32("database.max_conns"),
	}
	cfg.StorageDriver = strings.ToLower(v.GetString("storage.driver"))
	cfg.LockTTL = v.GetDuration("locks.ttl")
	cfg.SearchIndexTTL = v.GetDuration("search.index_ttl")
	cfg.SearchLimit = v.GetInt("search.default_limit")
	cfg.AttachmentsDir = v.GetString("attachments.dir")
	cfg.Logging = logging.Config{
		Level:  v.GetString("logging.level"),
		Format: v.GetString("logging.format"),
	}
	cfg.AllowedOrigins = v.GetStringSlice("cors.allowed_origins")

	switch cfg.StorageDriver {
	case StorageMemory, StoragePostgres:
	default:
		return Config{}, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
	if cfg.LockTTL <= 0 {
		return Config{}, fmt.Errorf("locks.ttl must be positive, got %s", cfg.LockTTL)
	}

	return cfg, nil
}
