package deduplication

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fingerprintRow is the SQL representation of a Fingerprint.
type fingerprintRow struct {
	ID               string  `gorm:"primaryKey;size:64"`
	OwnerID          string  `gorm:"size:128;not null;index:idx_fp_owner_captured,priority:1"`
	BinaryHash       string  `gorm:"size:64;index"`
	ContentHash      string  `gorm:"size:64;index"`
	Merchant         string  `gorm:"size:255"`
	Amount           float64 `gorm:"not null;default:0"`
	Date             string  `gorm:"size:64"`
	Confidence       float64 `gorm:"not null;default:0"`
	CapturedAt       int64   `gorm:"not null;index:idx_fp_owner_captured,priority:2"`
	FileSize         int64
	FileName         string `gorm:"size:255"`
	FileLastModified int64
	CreatedAt        time.Time
}

func (fingerprintRow) TableName() string { return "receipt_fingerprints" }

func rowFromFingerprint(fp Fingerprint) fingerprintRow {
	return fingerprintRow{
		ID:               fp.ID,
		OwnerID:          fp.OwnerID,
		BinaryHash:       fp.BinaryHash,
		ContentHash:      fp.ContentHash,
		Merchant:         fp.Merchant,
		Amount:           fp.Amount,
		Date:             fp.Date,
		Confidence:       fp.Confidence,
		CapturedAt:       fp.CapturedAt,
		FileSize:         fp.FileMeta.Size,
		FileName:         fp.FileMeta.Name,
		FileLastModified: fp.FileMeta.LastModified,
	}
}

func (r fingerprintRow) fingerprint() Fingerprint {
	return Fingerprint{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		BinaryHash:  r.BinaryHash,
		ContentHash: r.ContentHash,
		Merchant:    r.Merchant,
		Amount:      r.Amount,
		Date:        r.Date,
		Confidence:  r.Confidence,
		CapturedAt:  r.CapturedAt,
		FileMeta: FileMeta{
			Size:         r.FileSize,
			Name:         r.FileName,
			LastModified: r.FileLastModified,
		},
	}
}

// GormStore persists fingerprints in a SQL table through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenGormStore opens a postgres or sqlite database and migrates the table.
func OpenGormStore(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return NewGormStore(db)
}

// NewGormStore wraps an open connection and runs migrations.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&fingerprintRow{}); err != nil {
		return nil, fmt.Errorf("migrate fingerprints: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (g *GormStore) Load(ctx context.Context, ownerID string) ([]Fingerprint, error) {
	var rows []fingerprintRow
	err := g.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("captured_at ASC").
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load fingerprints for %s: %w", ownerID, err)
	}

	out := make([]Fingerprint, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.fingerprint())
	}
	return out, nil
}

func (g *GormStore) Append(ctx context.Context, fp Fingerprint) error {
	row := rowFromFingerprint(fp)
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert fingerprint %s: %w", fp.ID, err)
	}
	return nil
}

func (g *GormStore) Clear(ctx context.Context, ownerID string) error {
	return g.db.WithContext(ctx).Where("owner_id = ?", ownerID).Delete(&fingerprintRow{}).Error
}

func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
