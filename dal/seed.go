package dal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"cakeday/birthday"
	"cakeday/models"
)

// SeedEntry is one birthday in a seed file.
type SeedEntry struct {
	DiscordID string `yaml:"discord_id"`
	Month     uint   `yaml:"month"`
	Day       uint   `yaml:"day"`
	Timezone  string `yaml:"timezone"`
}

// LoadSeedFile reads a YAML list of seed entries.
func LoadSeedFile(path string) ([]SeedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []SeedEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return entries, nil
}

// ValidateSeed checks every entry and returns all problems found.
func ValidateSeed(entries []SeedEntry) error {
	var errs []error
	seen := make(map[string]int, len(entries))

	for i, entry := range entries {
		if entry.DiscordID == "" {
			errs = append(errs, fmt.Errorf("entry %d: missing discord_id", i))
			continue
		}
		if first, ok := seen[entry.DiscordID]; ok {
			errs = append(errs, fmt.Errorf("entry %d: discord_id %s duplicates entry %d", i, entry.DiscordID, first))
		} else {
			seen[entry.DiscordID] = i
		}
		if err := models.ValidateDate(entry.Month, entry.Day); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i, entry.DiscordID, err))
		}
		if err := birthday.ValidateTimezone(entry.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("entry %d (%s): %w", i, entry.DiscordID, err))
		}
	}

	return errors.Join(errs...)
}

// Seed inserts entries when the birthday table is empty. Nothing is inserted
// if any entry is invalid. It returns the number of rows inserted.
func (s *Store) Seed(ctx context.Context, entries []SeedEntry) (int, error) {
	if err := ValidateSeed(entries); err != nil {
		return 0, err
	}

	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Birthday{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || len(entries) == 0 {
			return nil
		}

		birthdays := make([]models.Birthday, len(entries))
		for i, entry := range entries {
			birthdays[i] = models.Birthday{
				DiscordID: entry.DiscordID,
				Month:     entry.Month,
				Day:       entry.Day,
				Timezone:  entry.Timezone,
			}
		}
		if err := tx.Create(&birthdays).Error; err != nil {
			return err
		}
		inserted = len(birthdays)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("seed birthdays: %w", err)
	}
	return inserted, nil
}

// SeedFromFile loads path and seeds the store from it.
func SeedFromFile(ctx context.Context, store *Store, path string) (int, error) {
	entries, err := LoadSeedFile(path)
	if err != nil {
		return 0, err
	}

	inserted, err := store.Seed(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	if inserted == 0 {
		slog.Info("birthdays already present, skipping seed", "file", path)
	} else {
		slog.Info("seeded birthdays", "file", path, "count", inserted)
	}
	return inserted, nil
}
