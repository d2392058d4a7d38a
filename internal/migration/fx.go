package migration

import (
	"fmt"

	"github.com/smallbiznis/ticketing/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch cfg.DBType {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		case "sqlite":
			if err := ApplySQLite(conn); err != nil {
				return err
			}
		default:
			return fmt.Errorf("no migrations for database type %q", cfg.DBType)
		}
		log.Info("database schema ready", zap.String("type", cfg.DBType))
		return nil
	}),
)
