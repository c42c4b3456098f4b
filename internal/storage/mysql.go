package storage

import (
	"context"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"kotonoha/internal/config"
	"kotonoha/internal/cost"
)

// MySQLLedger persists the append-only cost ledger in MySQL
type MySQLLedger struct {
	db *gorm.DB
}

func NewMySQLLedger(cfg config.MySQLConfig) (*MySQLLedger, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(&cost.Entry{}); err != nil {
		return nil, err
	}

	return &MySQLLedger{db: db}, nil
}

func (l *MySQLLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *MySQLLedger) Append(ctx context.Context, entry cost.Entry) error {
	return l.db.WithContext(ctx).Create(&entry).Error
}

func (l *MySQLLedger) Prune(ctx context.Context, cutoffMonth string) error {
	return l.db.WithContext(ctx).
		Where("month < ?", cutoffMonth).
		Delete(&cost.Entry{}).Error
}

func (l *MySQLLedger) Entries(ctx context.Context) ([]cost.Entry, error) {
	var entries []cost.Entry
	err := l.db.WithContext(ctx).
		Order("timestamp ASC").
		Find(&entries).Error
	return entries, err
}

func (l *MySQLLedger) MonthTotal(ctx context.Context, month string) (float64, error) {
	var total float64
	err := l.db.WithContext(ctx).
		Model(&cost.Entry{}).
		Where("month = ?", month).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error
	return total, err
}

func (l *MySQLLedger) Clear(ctx context.Context) error {
	return l.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&cost.Entry{}).Error
}
