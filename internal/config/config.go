package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/example/face-bridge/internal/facedetector"
)

// Config is the process configuration read from the environment.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR"        envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`

	DetectorAddr        string        `env:"FACE_DETECTOR_ADDR"         envDefault:"face-detector:50051"`
	DetectorDialTimeout time.Duration `env:"FACE_DETECTOR_DIAL_TIMEOUT" envDefault:"5s"`
	LandmarkMode        string        `env:"FACE_LANDMARK_MODE"         envDefault:"none"`
	ContourMode         string        `env:"FACE_CONTOUR_MODE"          envDefault:"none"`
	MinFaceSize         float32       `env:"FACE_MIN_FACE_SIZE"         envDefault:"0.1"`
	EnableTracking      bool          `env:"FACE_ENABLE_TRACKING"       envDefault:"false"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseDSN    string `env:"DATABASE_DSN"    envDefault:"host=postgres user=postgres password=postgres dbname=facebridge port=5432 sslmode=disable"`
	RedisAddr      string `env:"REDIS_ADDR"      envDefault:"redis:6379"`

	JWTSecret   string `env:"JWT_SECRET"   envDefault:"dev-secret"`
	JWTAudience string `env:"JWT_AUDIENCE"`

	MaxUploadBytes  int64 `env:"MAX_UPLOAD_BYTES"  envDefault:"10485760"`
	AllowLocalPaths bool  `env:"ALLOW_LOCAL_PATHS" envDefault:"false"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the env parser cannot.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	return c.DetectorOptions().Validate()
}

// DetectorOptions returns the tunable part of the face detector
// configuration. Performance and classification modes keep their defaults.
func (c *Config) DetectorOptions() facedetector.Options {
	opts := facedetector.DefaultOptions()
	opts.LandmarkMode = facedetector.Mode(c.LandmarkMode)
	opts.ContourMode = facedetector.Mode(c.ContourMode)
	opts.MinFaceSize = c.MinFaceSize
	opts.EnableTracking = c.EnableTracking
	return opts
}
