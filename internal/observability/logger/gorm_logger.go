package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig configures the query logger handed to gorm.Open.
type GormConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// GormLogger routes gorm output through the context-aware zap logger.
// Bound parameters are never logged; ticket holder data and password hashes
// pass through these queries.
type GormLogger struct {
	cfg GormConfig
}

func NewGormLogger(cfg GormConfig) *GormLogger {
	if cfg.Level == 0 {
		cfg.Level = gormlogger.Warn
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 200 * time.Millisecond
	}
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Info {
		FromContext(ctx).Info(msg, l.dataFields(data)...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Warn {
		FromContext(ctx).Warn(msg, l.dataFields(data)...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.cfg.Level >= gormlogger.Error {
		FromContext(ctx).Error(msg, l.dataFields(data)...)
	}
}

// Trace logs failed statements as errors and slow ones as warnings.
// Record-not-found is an expected lookup outcome and stays quiet.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)

	switch {
	case failed && l.cfg.Level >= gormlogger.Error:
		FromContext(ctx).Error("gorm.query", l.queryFields(fc, elapsed, err)...)
	case elapsed > l.cfg.SlowThreshold && l.cfg.Level >= gormlogger.Warn:
		FromContext(ctx).Warn("gorm.slow_query", l.queryFields(fc, elapsed, nil)...)
	case l.cfg.Level >= gormlogger.Info:
		FromContext(ctx).Debug("gorm.query", l.queryFields(fc, elapsed, nil)...)
	}
}

// ParamsFilter strips bound values from the rendered SQL.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) dataFields(data []interface{}) []zap.Field {
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	return fields
}

func (l *GormLogger) queryFields(fc func() (string, int64), elapsed time.Duration, err error) []zap.Field {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", statementKind(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	return fields
}

func statementKind(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "UNKNOWN"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
