package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/ticketing/internal/config"
)

const defaultServiceName = "ticketing"

// Config is the slice of application config the logger, tracer and
// metrics registry care about.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Role        string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64

	GormSlowThreshold time.Duration
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = defaultServiceName
	}
	obs := cfg.Observability
	slow := obs.GormSlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}

	return Config{
		ServiceName:          name,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		Role:                 cfg.Role,
		LogLevel:             obs.LogLevel,
		LogFormat:            obs.LogFormat,
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: obs.OtelProtocol,
		OtelSamplingRatio:    obs.OtelSamplingRatio,
		GormSlowThreshold:    slow,
	}
}

// Debug is true for debug level or any local environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
