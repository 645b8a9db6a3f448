package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ArchiveDownload records a finished archive download
type ArchiveDownload struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	JobID        string    `gorm:"size:36;index" json:"job_id"`
	FileName     string    `gorm:"size:255;not null;index" json:"file_name"`
	Path         string    `gorm:"size:4096;not null" json:"path"`
	Bytes        int64     `gorm:"not null" json:"bytes"`
	ContentType  string    `gorm:"size:255" json:"content_type"`
	Verified     bool      `gorm:"not null;default:false" json:"verified"`
	ArchiveStart time.Time `json:"archive_start"`
	CreatedAt    time.Time `json:"created_at"`
}

// InventorySnapshot stores the JSON snapshot of one inventory refresh
type InventorySnapshot struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Data         string    `gorm:"not null" json:"-"`
	Archives     int       `json:"archives"`
	Systems      int       `json:"systems"`
	Groups       int       `json:"groups"`
	Destinations int       `json:"destinations"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// InitializeDB opens the SQLite database in dir and migrates the schema
func InitializeDB(dir string) (*gorm.DB, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	dbPath := filepath.Join(dir, "papertrail_manager.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&ArchiveDownload{}, &InventorySnapshot{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}
	return nil
}

// InsertArchiveDownload inserts a new download record into the database
func InsertArchiveDownload(db *gorm.DB, record *ArchiveDownload) error {
	return db.Create(record).Error
}

// GetArchiveDownloads retrieves download records, newest first
func GetArchiveDownloads(db *gorm.DB, limit int) ([]ArchiveDownload, error) {
	var records []ArchiveDownload
	query := db.Order("created_at desc, id desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&records)
	return records, result.Error
}

// CountVerifiedDownloads counts distinct archives downloaded and verified
func CountVerifiedDownloads(db *gorm.DB) (int64, error) {
	var count int64
	result := db.Model(&ArchiveDownload{}).Where("verified = ?", true).Distinct("file_name").Count(&count)
	return count, result.Error
}

// DownloadedFileNames maps the file name of every verified download to the
// path of its most recent copy
func DownloadedFileNames(db *gorm.DB) (map[string]string, error) {
	var records []ArchiveDownload
	result := db.Select("file_name", "path").Where("verified = ?", true).Order("id asc").Find(&records)
	if result.Error != nil {
		return nil, result.Error
	}
	paths := make(map[string]string, len(records))
	for _, r := range records {
		paths[r.FileName] = r.Path
	}
	return paths, nil
}

// SaveSnapshot stores a snapshot and prunes everything but the newest keep rows
func SaveSnapshot(db *gorm.DB, snapshot *InventorySnapshot, keep int) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(snapshot).Error; err != nil {
			return err
		}
		if keep <= 0 {
			return nil
		}
		var ids []uint
		err := tx.Model(&InventorySnapshot{}).
			Order("created_at desc, id desc").
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		return tx.Delete(&InventorySnapshot{}, ids[keep:]).Error
	})
}

// GetLatestSnapshot returns the newest snapshot, or nil when none is stored
func GetLatestSnapshot(db *gorm.DB) (*InventorySnapshot, error) {
	var snapshots []InventorySnapshot
	result := db.Order("created_at desc, id desc").Limit(1).Find(&snapshots)
	if result.Error != nil {
		return nil, result.Error
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return &snapshots[0], nil
}
