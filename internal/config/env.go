package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "CODEBLOCKS_"

func applyEnv(config *Config) error {
	envString(envPrefix+"HTTP_HOST", &config.HTTP.Host)
	envList(envPrefix+"HTTP_ALLOWED_ORIGINS", &config.HTTP.AllowedOrigins)
	envString(envPrefix+"DATABASE_PATH", &config.Database.Path)
	envString(envPrefix+"LOG_LEVEL", &config.Log.Level)
	envString(envPrefix+"ROOM_EVICTION_POLICY", &config.Room.EvictionPolicy)

	return errors.Join(
		// PORT first so CODEBLOCKS_HTTP_PORT wins when both are set
		envInt("PORT", &config.HTTP.Port),
		envInt(envPrefix+"HTTP_PORT", &config.HTTP.Port),
		envDuration(envPrefix+"HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout),
		envDuration(envPrefix+"HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout),
		envDuration(envPrefix+"HTTP_SHUTDOWN_TIMEOUT", &config.HTTP.ShutdownTimeout),

		envDuration(envPrefix+"DATABASE_TIMEOUT", &config.Database.Timeout),
		envInt(envPrefix+"DATABASE_MAX_CONNECTIONS", &config.Database.MaxConnections),

		envDuration(envPrefix+"WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval),
		envDuration(envPrefix+"WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout),
		envDuration(envPrefix+"WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout),
		envInt(envPrefix+"WEBSOCKET_SEND_BUFFER", &config.WebSocket.SendBuffer),
		envInt64(envPrefix+"WEBSOCKET_MAX_MESSAGE_BYTES", &config.WebSocket.MaxMessageBytes),
		envFloat(envPrefix+"WEBSOCKET_MESSAGE_RATE", &config.WebSocket.MessageRate),
		envInt(envPrefix+"WEBSOCKET_MESSAGE_BURST", &config.WebSocket.MessageBurst),

		envBool(envPrefix+"LOG_DEVELOPMENT", &config.Log.Development),
	)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
