package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mission-ledger/models"
	"mission-ledger/store"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// Archiver stores a season snapshot under key and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) (string, error)
}

// SeasonSnapshot is the archived state of every user at reset time.
type SeasonSnapshot struct {
	Label      string        `json:"label"`
	ArchivedAt time.Time     `json:"archived_at"`
	Users      []models.User `json:"users"`
}

// SeasonReport describes a completed reset.
type SeasonReport struct {
	Label      string `json:"label"`
	Users      int64  `json:"users"`
	ArchiveKey string `json:"archive_key,omitempty"`
	Location   string `json:"location,omitempty"`
}

type SeasonService struct {
	Store    store.Store
	Archiver Archiver // optional
	Log      *zap.Logger

	now func() time.Time
}

func NewSeasonService(s store.Store, archiver Archiver, log *zap.Logger) *SeasonService {
	return &SeasonService{Store: s, Archiver: archiver, Log: log, now: time.Now}
}

// ArchiveKey is the object key a season label is archived under.
func ArchiveKey(label string) string {
	return "seasons/" + slug.Make(label) + ".json"
}

// ResetSeason archives every user and then clears points, levels,
// achievements and completed missions. Both happen in one transaction that
// holds every user row, so no award or redemption interleaves. If archiving
// fails nothing is reset.
func (s *SeasonService) ResetSeason(ctx context.Context, label string) (*SeasonReport, error) {
	now := s.now().UTC()
	label = strings.TrimSpace(label)
	if label == "" {
		label = "season " + now.Format("2006-01-02 150405")
	}
	if slug.Make(label) == "" {
		return nil, invalidf("season label %q has no usable characters", label)
	}

	report := &SeasonReport{Label: label}
	err := s.Store.Transaction(ctx, func(tx store.Tx) error {
		users, err := tx.LockAllUsers()
		if err != nil {
			return err
		}

		if s.Archiver != nil {
			body, err := json.MarshalIndent(SeasonSnapshot{Label: label, ArchivedAt: now, Users: users}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode season snapshot: %w", err)
			}
			report.ArchiveKey = ArchiveKey(label)
			report.Location, err = s.Archiver.Archive(ctx, report.ArchiveKey, body)
			if err != nil {
				return fmt.Errorf("%w: archive season: %v", store.ErrUnavailable, err)
			}
		}

		report.Users, err = tx.ResetUsers()
		return err
	})
	if err != nil {
		s.Log.Error("season reset failed", zap.String("label", label), zap.Error(err))
		return nil, err
	}

	seasonResets.Inc()
	s.Log.Info("season reset",
		zap.String("label", label),
		zap.Int64("users", report.Users),
		zap.String("archive", report.Location),
	)
	return report, nil
}
