// Package observability builds the relay's structured logger and the field
// helpers every component logs connection and room identity with.
package observability

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/relay/internal/config"
)

// ServiceName is attached to every log line as the "service" field.
const ServiceName = "relay"

// Log field keys shared across packages.
const (
	FieldService  = "service"
	FieldInstance = "instance"
	FieldConnID   = "conn_id"
	FieldRoomID   = "room_id"
)

// NewLogger creates the process logger. Every entry carries the service name
// and the process instance id.
//
// Precondition: cfg.Level must be one of "debug", "info", "warn", "error".
// Precondition: cfg.Format must be "json" or "console".
// Postcondition: Returns a configured zap.Logger or a non-nil error.
func NewLogger(cfg config.LoggingConfig, instanceID string) (*zap.Logger, error) {
	zapCfg, err := buildConfig(cfg, instanceID)
	if err != nil {
		return nil, err
	}
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

func buildConfig(cfg config.LoggingConfig, instanceID string) (zap.Config, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "json":
		zapCfg = zap.NewProductionConfig()
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	default:
		return zap.Config{}, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	// Per-connection ordering must survive in the log.
	zapCfg.Sampling = nil
	zapCfg.InitialFields = map[string]any{
		FieldService:  ServiceName,
		FieldInstance: instanceID,
	}
	return zapCfg, nil
}

// ConnID tags an entry with a connection id.
func ConnID(id string) zap.Field { return zap.String(FieldConnID, id) }

// RoomID tags an entry with a room id.
func RoomID(id string) zap.Field { return zap.String(FieldRoomID, id) }

// ForConn returns a child logger scoped to one connection.
//
// Precondition: logger must be non-nil.
func ForConn(logger *zap.Logger, connID string) *zap.Logger {
	return logger.With(ConnID(connID))
}
