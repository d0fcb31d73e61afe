package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/virtuepath/internal/config"
)

// Config holds observability settings. Values fall back to the application
// config when the OTEL_* / LOG_* variables are unset.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "virtuepath"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(envOr("DEPLOYMENT_ENV", cfg.Environment)),
		Version:              strings.TrimSpace(envOr("SERVICE_VERSION", cfg.AppVersion)),
		LogLevel:             strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(envOr("LOG_FORMAT", "json")),
		OtelEnabled:          envBool("OTEL_ENABLED", false),
		OtelExporterEndpoint: envOr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
		OtelSamplingRatio:    envFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

// Debug reports whether verbose logging is wanted.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func envOr(key, def string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return def
}

func envBool(key string, def bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return parsed
}

func envFloat(key string, def float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return parsed
}
