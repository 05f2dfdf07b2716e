package dal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"cakeday/models"
)

// ErrNotFound is returned when no birthday exists for the given key.
var ErrNotFound = errors.New("birthday not found")

// InitDB creates a database connection and migrates the schema. A DSN
// starting with postgres:// or postgresql:// selects postgres, anything else
// is treated as a sqlite file path.
func InitDB(dsn string) (*gorm.DB, error) {
	dialector, driver := dialectorFor(dsn)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", driver, err)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer; in-memory databases are per connection
		sqlDB.SetMaxOpenConns(1)
	}
	slog.Info("connected to database", "driver", driver)

	if err := db.AutoMigrate(&models.Birthday{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Debug("migrated database")

	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.Open(dsn), "postgres"
	}
	return sqlite.Open(dsn), "sqlite"
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Store is the gorm-backed birthday store.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListBirthdays returns every birthday, ordered by discord id.
func (s *Store) ListBirthdays(ctx context.Context) ([]models.Birthday, error) {
	var birthdays []models.Birthday
	err := s.db.WithContext(ctx).Order("discord_id").Find(&birthdays).Error
	if err != nil {
		return nil, err
	}
	return birthdays, nil
}

// UpdateLastWishedYear records the local year a birthday was wished in.
func (s *Store) UpdateLastWishedYear(ctx context.Context, id string, year int) error {
	result := s.db.WithContext(ctx).
		Model(&models.Birthday{}).
		Where("id = ?", id).
		Update("last_wished_year", year)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return nil
}

// GetBirthday gets the birthday for the given user.
func (s *Store) GetBirthday(ctx context.Context, discordID string) (*models.Birthday, error) {
	var birthday models.Birthday
	err := s.db.WithContext(ctx).
		Where("discord_id = ?", discordID).
		Take(&birthday).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, discordID)
	}
	if err != nil {
		return nil, err
	}
	return &birthday, nil
}

// UpsertBirthday inserts or updates the given user's birthday. An existing
// record keeps its id and last wished year.
func (s *Store) UpsertBirthday(ctx context.Context, birthday models.Birthday) (*models.Birthday, error) {
	birthday.ID = ""
	birthday.LastWishedYear = nil

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "discord_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"month", "day", "timezone", "updated_at"}),
	}).Create(&birthday).Error
	if err != nil {
		return nil, err
	}
	return s.GetBirthday(ctx, birthday.DiscordID)
}

// DeleteBirthday removes the given user's birthday. It returns false if there
// was nothing to remove.
func (s *Store) DeleteBirthday(ctx context.Context, discordID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("discord_id = ?", discordID).
		Delete(&models.Birthday{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountBirthdays returns the number of stored birthdays.
func (s *Store) CountBirthdays(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Birthday{}).Count(&count).Error
	return count, err
}
