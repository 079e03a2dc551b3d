package lib

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/golang/glog"
	"github.com/joho/godotenv"
)

type MongoConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Config struct {
	Port      string      `yaml:"port"`
	JWTSecret string      `yaml:"jwt_secret"`
	Mongo     MongoConfig `yaml:"mongo"`
	// Seconds between pending-request polls.
	PollInterval int `yaml:"poll_interval"`
	// Seconds between coordinate syncs.
	CoordinateInterval  int `yaml:"coordinate_interval"`
	AcceptRetries       int `yaml:"accept_retries"`
	ReconnectsPerMinute int `yaml:"reconnects_per_minute"`
}

func DefaultConfig() Config {
	return Config{
		Port:      "3000",
		JWTSecret: "fallback-secret-key",
		Mongo: MongoConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "workkie",
			TimeoutSeconds: 10,
		},
		PollInterval:        20,
		CoordinateInterval:  60,
		AcceptRetries:       3,
		ReconnectsPerMinute: 6,
	}
}

// LoadConfig reads the optional YAML file at path, then applies .env and
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
			glog.Infof("[config] loaded configuration from %s", path)
		case errors.Is(err, fs.ErrNotExist):
			glog.V(1).Infof("[config] no config file at %s, using defaults", path)
		default:
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		glog.Warningf("[config] could not read .env: %v", err)
	}
	applyEnv(&cfg)

	glog.Infof("[config] - Port: %s", cfg.Port)
	glog.Infof("[config] - Mongo database: %s", cfg.Mongo.Database)
	glog.Infof("[config] - Poll interval: %d seconds", cfg.PollInterval)
	glog.Infof("[config] - Coordinate interval: %d seconds", cfg.CoordinateInterval)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Mongo.Database = name
	}
	envInt("POLL_INTERVAL", &cfg.PollInterval)
	envInt("COORDINATE_INTERVAL", &cfg.CoordinateInterval)
	envInt("ACCEPT_RETRIES", &cfg.AcceptRetries)
	envInt("RECONNECTS_PER_MINUTE", &cfg.ReconnectsPerMinute)
	envInt("MONGO_TIMEOUT", &cfg.Mongo.TimeoutSeconds)
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		glog.Warningf("[config] ignoring %s=%q: %v", name, v, err)
		return
	}
	*dst = n
}

func (c *Config) GetPollInterval() time.Duration {
	return seconds(c.PollInterval, 20)
}

func (c *Config) GetCoordinateInterval() time.Duration {
	return seconds(c.CoordinateInterval, 60)
}

func (c *Config) GetStoreTimeout() time.Duration {
	return seconds(c.Mongo.TimeoutSeconds, 10)
}

func seconds(n int, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}
