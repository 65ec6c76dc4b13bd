package services

import (
	"context"
	"errors"
	"strings"

	"mission-ledger/models"
	"mission-ledger/store"

	"go.uber.org/zap"
)

type MissionService struct {
	Store store.Store
	Log   *zap.Logger
}

func NewMissionService(s store.Store, log *zap.Logger) *MissionService {
	return &MissionService{Store: s, Log: log}
}

// MissionInput is what an admin supplies to create a mission.
type MissionInput struct {
	Code        string             `json:"code,omitempty" yaml:"code"`
	Title       string             `json:"title" yaml:"title"`
	Description string             `json:"description" yaml:"description"`
	Points      int64              `json:"points" yaml:"points"`
	Type        models.MissionType `json:"type" yaml:"type"`
	PostID      *int64             `json:"post_id,omitempty" yaml:"post_id"`
	PollID      *string            `json:"poll_id,omitempty" yaml:"poll_id"`
}

func (in MissionInput) mission() *models.Mission {
	m := &models.Mission{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		Type:        in.Type,
		Active:      true,
		PostID:      in.PostID,
		PollID:      in.PollID,
	}
	if code := strings.TrimSpace(in.Code); code != "" {
		m.Code = &code
	}
	return m
}

// CreateMission stores a new active mission. Ids follow creation order.
func (s *MissionService) CreateMission(ctx context.Context, in MissionInput) (*models.Mission, error) {
	m := in.mission()
	if err := m.Validate(); err != nil {
		return nil, invalidf("%v", err)
	}
	if m.PollID != nil && *m.PollID == "" {
		return nil, invalidf("poll_id cannot be empty")
	}
	if err := s.Store.CreateMission(ctx, m); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, invalidf("mission code or poll id already in use")
		}
		return nil, err
	}
	s.Log.Info("mission created",
		zap.Uint("mission_id", m.ID),
		zap.String("title", m.Title),
		zap.String("type", string(m.Type)),
		zap.Int64("points", m.Points),
	)
	return m, nil
}

// EnsureMission creates the mission identified by in.Code unless it already
// exists. Used for catalog seeding.
func (s *MissionService) EnsureMission(ctx context.Context, in MissionInput) (*models.Mission, bool, error) {
	if strings.TrimSpace(in.Code) == "" {
		return nil, false, invalidf("seeded missions need a code")
	}
	existing, err := s.Store.FindMissionByCode(ctx, strings.TrimSpace(in.Code))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	m, err := s.CreateMission(ctx, in)
	if err != nil {
		// Lost a race with a concurrent seed.
		if existing, findErr := s.Store.FindMissionByCode(ctx, strings.TrimSpace(in.Code)); findErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}

func (s *MissionService) GetMission(ctx context.Context, id uint) (*models.Mission, error) {
	m, err := s.Store.FindMission(ctx, id)
	if err != nil {
		return nil, missionErr(err)
	}
	return m, nil
}

// ListActiveMissions returns active missions in creation order.
func (s *MissionService) ListActiveMissions(ctx context.Context) ([]models.Mission, error) {
	return s.Store.ListActiveMissions(ctx)
}

func (s *MissionService) SetMissionActive(ctx context.Context, id uint, active bool) (*models.Mission, error) {
	return s.update(ctx, id, func(m *models.Mission) error {
		m.Active = active
		return nil
	})
}

// AttachMissionPost records the channel message that announces the mission,
// so reactions on it resolve here.
func (s *MissionService) AttachMissionPost(ctx context.Context, id uint, postID int64) (*models.Mission, error) {
	if postID == 0 {
		return nil, invalidf("post_id is required")
	}
	return s.update(ctx, id, func(m *models.Mission) error {
		m.PostID = &postID
		return nil
	})
}

// AttachMissionPoll records the platform poll id of a poll mission.
func (s *MissionService) AttachMissionPoll(ctx context.Context, id uint, pollID string) (*models.Mission, error) {
	pollID = strings.TrimSpace(pollID)
	if pollID == "" {
		return nil, invalidf("poll_id is required")
	}
	return s.update(ctx, id, func(m *models.Mission) error {
		if m.Type != models.MissionTypePoll {
			return invalidf("mission %d is a %s mission, not a poll", m.ID, m.Type)
		}
		m.PollID = &pollID
		return nil
	})
}

func (s *MissionService) update(ctx context.Context, id uint, mutate func(m *models.Mission) error) (*models.Mission, error) {
	var out *models.Mission
	err := s.Store.Transaction(ctx, func(tx store.Tx) error {
		m, err := tx.LockMission(id)
		if err != nil {
			return missionErr(err)
		}
		if err := mutate(m); err != nil {
			return err
		}
		if err := tx.SaveMission(m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, invalidf("poll id already attached to another mission")
	}
	if err != nil {
		return nil, err
	}
	s.Log.Info("mission updated", zap.Uint("mission_id", id), zap.Bool("active", out.Active))
	return out, nil
}
