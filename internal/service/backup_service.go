package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"medprep/internal/database"
	"medprep/internal/models"
	"medprep/internal/repository"
	"medprep/internal/validation"
)

const backupVersion = "1.0"

// OwnerBackup is everything stored for one owner
type OwnerBackup struct {
	Version         string                         `json:"version"`
	ExportedAt      time.Time                      `json:"exported_at"`
	DatabaseType    string                         `json:"database_type"`
	OwnerID         string                         `json:"owner_id"`
	Preferences     *models.ReviewPreferences      `json:"preferences"`
	Sessions        []*models.ReviewSession        `json:"sessions"`
	CompletionStats []*models.ReviewCompletionStat `json:"completion_stats"`
	Streak          *models.StreakRecord           `json:"streak"`
}

// ImportSummary counts what an import restored
type ImportSummary struct {
	Sessions        int  `json:"sessions"`
	CompletionStats int  `json:"completionStats"`
	Preferences     bool `json:"preferences"`
	Streak          bool `json:"streak"`
}

// BackupService handles per-owner backup and restore
type BackupService struct {
	db *database.DB
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	return &BackupService{db: db}
}

// Collect reads an owner's records into a backup
func (s *BackupService) Collect(ctx context.Context, ownerID string) (*OwnerBackup, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	backup := &OwnerBackup{
		Version:      backupVersion,
		ExportedAt:   time.Now().UTC(),
		DatabaseType: s.db.Dialect.Name(),
		OwnerID:      ownerID,
	}

	var err error
	if backup.Preferences, err = repository.NewPreferencesRepository(s.db).Get(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("failed to export preferences: %w", err)
	}
	if backup.Sessions, err = repository.NewReviewRepository(s.db).ListSessions(ctx, ownerID, "", 0); err != nil {
		return nil, fmt.Errorf("failed to export sessions: %w", err)
	}
	if backup.CompletionStats, err = repository.NewCompletionRepository(s.db).ListBetween(ctx, ownerID, "0000-01-01", "9999-12-31"); err != nil {
		return nil, fmt.Errorf("failed to export completion stats: %w", err)
	}
	if backup.Streak, err = repository.NewStreakRepository(s.db).Get(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("failed to export streak: %w", err)
	}
	return backup, nil
}

// ExportToWriter writes an owner's backup as indented JSON
func (s *BackupService) ExportToWriter(ctx context.Context, ownerID string, w io.Writer) error {
	backup, err := s.Collect(ctx, ownerID)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	slog.Info("owner exported",
		"owner_id", ownerID,
		"sessions", len(backup.Sessions),
		"completion_stats", len(backup.CompletionStats),
		"has_streak", backup.Streak != nil,
	)
	return nil
}

// Export writes an owner's backup to a file
func (s *BackupService) Export(ctx context.Context, ownerID, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	return s.ExportToWriter(ctx, ownerID, file)
}

// Import restores a backup file
func (s *BackupService) Import(ctx context.Context, inputPath string) (*ImportSummary, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader restores a backup into an owner with no review or streak data.
// Everything is written in one transaction; session IDs are reassigned.
func (s *BackupService) ImportFromReader(ctx context.Context, reader io.Reader) (*ImportSummary, error) {
	var backup OwnerBackup
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode backup: %w", err)
	}
	if err := requireOwner(backup.OwnerID); err != nil {
		return nil, err
	}

	slog.Info("importing owner backup", "owner_id", backup.OwnerID, "version", backup.Version, "exported_at", backup.ExportedAt)

	summary := &ImportSummary{}
	err := s.db.WithTx(ctx, func(tx database.DBTX) error {
		reviews := repository.NewReviewRepository(tx)
		streaks := repository.NewStreakRepository(tx)

		existing, err := reviews.CountSessions(ctx, backup.OwnerID, "")
		if err != nil {
			return err
		}
		streak, err := streaks.Get(ctx, backup.OwnerID)
		if err != nil {
			return err
		}
		if existing > 0 || streak != nil {
			return invalid(validation.Error{Field: "ownerId", Message: "owner already has review or streak data"})
		}

		if backup.Preferences != nil {
			if err := importPreferences(ctx, repository.NewPreferencesRepository(tx), backup.OwnerID, backup.Preferences); err != nil {
				return err
			}
			summary.Preferences = true
		}

		for _, session := range backup.Sessions {
			session.OwnerID = backup.OwnerID
			if err := session.Validate(); err != nil {
				return invalid(err)
			}
			if err := reviews.CreateSession(ctx, session); err != nil {
				return err
			}
			summary.Sessions++
		}

		stats := repository.NewCompletionRepository(tx)
		for _, stat := range backup.CompletionStats {
			stat.OwnerID = backup.OwnerID
			stat.Recompute()
			if err := stats.Insert(ctx, stat); err != nil {
				return fmt.Errorf("failed to import completion stat %s: %w", stat.Date, err)
			}
			summary.CompletionStats++
		}

		if backup.Streak != nil {
			backup.Streak.OwnerID = backup.OwnerID
			if err := streaks.Restore(ctx, backup.Streak); err != nil {
				return err
			}
			summary.Streak = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("owner import completed", "owner_id", backup.OwnerID, "sessions", summary.Sessions, "completion_stats", summary.CompletionStats)
	return summary, nil
}

func importPreferences(ctx context.Context, repo *repository.PreferencesRepository, ownerID string, prefs *models.ReviewPreferences) error {
	prefs.OwnerID = ownerID
	if err := prefs.Validate(); err != nil {
		return invalid(err)
	}

	current, err := repo.Get(ctx, ownerID)
	if err != nil {
		return err
	}
	if current == nil {
		return repo.Create(ctx, prefs)
	}
	return repo.Update(ctx, prefs)
}
