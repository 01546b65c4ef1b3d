package infrastructure

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
)

// SQLiteRunRepository implements domain.RunRepository using SQLite
type SQLiteRunRepository struct {
	db *gorm.DB
}

// NewSQLiteRunRepository creates a new SQLite run-history repository
func NewSQLiteRunRepository(dbPath string) (*SQLiteRunRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteRunRepository{db: db}, nil
}

// Create records a completed run
func (r *SQLiteRunRepository) Create(run *domain.Run) error {
	return r.db.Create(run).Error
}

// FindRecent returns the most recent runs, newest first
func (r *SQLiteRunRepository) FindRecent(limit int) ([]*domain.Run, error) {
	var runs []*domain.Run
	err := r.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// FindByDistrict returns recent runs for one district, newest first
func (r *SQLiteRunRepository) FindByDistrict(district string, limit int) ([]*domain.Run, error) {
	var runs []*domain.Run
	err := r.db.Where("district = ?", district).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// GetTotals returns aggregate counters across all recorded runs
func (r *SQLiteRunRepository) GetTotals() (*domain.RunTotals, error) {
	totals := &domain.RunTotals{}

	err := r.db.Model(&domain.Run{}).
		Select("COUNT(*) as runs, " +
			"COALESCE(SUM(success), 0) as success, " +
			"COALESCE(SUM(failed), 0) as failed, " +
			"COALESCE(SUM(empty), 0) as empty, " +
			"COALESCE(SUM(skipped), 0) as skipped, " +
			"COALESCE(SUM(bytes), 0) as bytes").
		Scan(totals).Error
	if err != nil {
		return nil, err
	}

	return totals, nil
}

// Close closes the database connection
func (r *SQLiteRunRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
