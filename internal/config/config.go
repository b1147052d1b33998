// Package config loads the service configuration from the environment.
// A .env file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultServerAddr      = ":12454"
	DefaultCameraConfig    = "config/cameras.yaml"
	DefaultBackendURL      = "http://localhost:8000/ai/checktime"
	DefaultNotifyTimeout   = 3 * time.Second
	DefaultStabilizeFrames = 20
)

type Config struct {
	Server   ServerConfig
	Cameras  CameraConfig
	Notify   NotifyConfig
	Detector DetectorConfig
	AMQP     AMQPConfig
	Redis    RedisConfig
	Hooks    HooksConfig
	DBPath   string
	LogLevel slog.Level
}

type ServerConfig struct {
	Addr string
}

type CameraConfig struct {
	RegistryPath    string
	StabilizeFrames int
	// MotionThreshold is the changed-pixel percentage below which a frame
	// reuses the previous detections. Zero disables the gate.
	MotionThreshold float64
}

type NotifyConfig struct {
	BackendURL string
	Timeout    time.Duration
}

type DetectorConfig struct {
	ScriptPath  string
	PythonPath  string
	PersonModel string
	ItemModel   string
}

// AMQPConfig is optional; an empty URL disables the publisher.
type AMQPConfig struct {
	URL   string
	Queue string
}

// RedisConfig is optional; an empty Addr disables the publisher.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// HooksConfig is optional; an empty Dir disables event hooks.
type HooksConfig struct {
	Dir     string
	Timeout time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	stabilize, err := intEnv("STABILIZE_FRAMES", DefaultStabilizeFrames)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if stabilize <= 0 {
		return nil, fmt.Errorf("%s: STABILIZE_FRAMES must be positive, got %d", op, stabilize)
	}

	motion := 0.0
	if v := os.Getenv("MOTION_THRESHOLD"); v != "" {
		motion, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid MOTION_THRESHOLD: %w", op, err)
		}
		if motion < 0 {
			return nil, fmt.Errorf("%s: MOTION_THRESHOLD must not be negative", op)
		}
	}

	timeout := DefaultNotifyTimeout
	if v := os.Getenv("NOTIFY_TIMEOUT"); v != "" {
		timeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid NOTIFY_TIMEOUT: %w", op, err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("%s: NOTIFY_TIMEOUT must be positive", op)
		}
	}

	hookTimeout := 5 * time.Second
	if v := os.Getenv("HOOK_TIMEOUT"); v != "" {
		hookTimeout, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid HOOK_TIMEOUT: %w", op, err)
		}
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	level, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath, err = defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return &Config{
		Server: ServerConfig{
			Addr: stringEnv("SERVER_ADDR", DefaultServerAddr),
		},
		Cameras: CameraConfig{
			RegistryPath:    stringEnv("CAMERA_CONFIG", DefaultCameraConfig),
			StabilizeFrames: stabilize,
			MotionThreshold: motion,
		},
		Notify: NotifyConfig{
			BackendURL: stringEnv("BOOKING_BACKEND_URL", DefaultBackendURL),
			Timeout:    timeout,
		},
		Detector: DetectorConfig{
			ScriptPath:  os.Getenv("DETECTOR_SCRIPT"),
			PythonPath:  os.Getenv("PYTHON_BIN"),
			PersonModel: os.Getenv("PERSON_MODEL"),
			ItemModel:   os.Getenv("ITEM_MODEL"),
		},
		AMQP: AMQPConfig{
			URL:   os.Getenv("AMQP_URL"),
			Queue: os.Getenv("AMQP_QUEUE"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Hooks: HooksConfig{
			Dir:     os.Getenv("HOOKS_DIR"),
			Timeout: hookTimeout,
		},
		DBPath:   dbPath,
		LogLevel: level,
	}, nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL %q", s)
}

// defaultDBPath returns ~/.seatvision/seatvision.db.
func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".seatvision", "seatvision.db"), nil
}
