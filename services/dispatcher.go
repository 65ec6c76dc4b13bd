package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mission-ledger/models"
	"mission-ledger/store"

	"go.uber.org/zap"
)

// TestMissionPoints is paid once per user for the "try me" action.
const TestMissionPoints int64 = 5

type OutcomeStatus string

const (
	StatusAwarded          OutcomeStatus = "awarded"
	StatusAlreadyCompleted OutcomeStatus = "already_completed"
	StatusIgnored          OutcomeStatus = "ignored"
)

// Outcome reports what a dispatched event did. Points, Level and
// NewAchievements are only set when Status is awarded.
type Outcome struct {
	Status          OutcomeStatus          `json:"status"`
	Reason          string                 `json:"reason,omitempty"`
	MissionID       uint                   `json:"mission_id,omitempty"`
	Token           models.CompletionToken `json:"token,omitempty"`
	Awarded         int64                  `json:"awarded,omitempty"`
	Points          int64                  `json:"points,omitempty"`
	Level           int                    `json:"level,omitempty"`
	NewAchievements []string               `json:"new_achievements,omitempty"`
}

func ignored(reason string) *Outcome {
	return &Outcome{Status: StatusIgnored, Reason: reason}
}

// Dispatcher turns inbound mission events into awards.
type Dispatcher struct {
	Store       store.Store
	Progression *ProgressionService
	Log         *zap.Logger
}

func NewDispatcher(s store.Store, progression *ProgressionService, log *zap.Logger) *Dispatcher {
	return &Dispatcher{Store: s, Progression: progression, Log: log}
}

// Dispatch resolves the event to a mission and awards it. Events that cannot
// be resolved, and replays, are outcomes rather than errors.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event) (*Outcome, error) {
	if err := ev.Validate(); err != nil {
		return nil, invalidf("%v", err)
	}

	out, err := d.dispatch(ctx, ev)
	if err != nil {
		dispatchOutcomes.WithLabelValues(string(ev.Kind), "error").Inc()
		d.Log.Warn("dispatch failed",
			zap.String("kind", string(ev.Kind)),
			zap.Int64("external_user_id", ev.ExternalUserID),
			zap.Error(err),
		)
		return nil, err
	}
	dispatchOutcomes.WithLabelValues(string(ev.Kind), string(out.Status)).Inc()
	d.Log.Debug("event dispatched",
		zap.String("kind", string(ev.Kind)),
		zap.Int64("external_user_id", ev.ExternalUserID),
		zap.String("status", string(out.Status)),
		zap.String("reason", out.Reason),
	)
	return out, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev models.Event) (*Outcome, error) {
	switch ev.Kind {
	case models.EventTest:
		return d.complete(ctx, ev.ExternalUserID, 0, models.TestMissionToken, TestMissionPoints)

	case models.EventPostReaction:
		m, out, err := d.resolve(ctx, models.MissionTypePost, func() (*models.Mission, error) {
			if ev.MissionID != 0 {
				return d.Store.FindMission(ctx, ev.MissionID)
			}
			return d.Store.FindMissionByPost(ctx, ev.PostID)
		})
		if m == nil {
			return out, err
		}
		return d.complete(ctx, ev.ExternalUserID, m.ID, m.Token(), m.Points, AchievementFirstReaction)

	case models.EventPollAnswer:
		m, out, err := d.resolve(ctx, models.MissionTypePoll, func() (*models.Mission, error) {
			return d.Store.FindMissionByPoll(ctx, ev.PollID)
		})
		if m == nil {
			return out, err
		}
		return d.complete(ctx, ev.ExternalUserID, m.ID, m.Token(), m.Points, AchievementFirstPoll)
	}
	return nil, invalidf("unknown event kind %q", ev.Kind)
}

// resolve looks up the mission for an event and checks it is an active
// mission of the wanted type. A nil mission comes with either an ignored
// outcome or an error.
func (d *Dispatcher) resolve(ctx context.Context, want models.MissionType, find func() (*models.Mission, error)) (*models.Mission, *Outcome, error) {
	m, err := find()
	if errors.Is(err, store.ErrNotFound) {
		return nil, ignored("no mission matches the event"), nil
	}
	if err != nil {
		return nil, nil, err
	}
	if m.Type != want {
		out := ignored(fmt.Sprintf("mission is not a %s mission", want))
		out.MissionID = m.ID
		return nil, out, nil
	}
	if !m.Active {
		out := ignored("mission is inactive")
		out.MissionID = m.ID
		return nil, out, nil
	}
	return m, nil, nil
}

func (d *Dispatcher) complete(ctx context.Context, externalUserID int64, missionID uint, token models.CompletionToken, points int64, achievements ...string) (*Outcome, error) {
	res, err := d.Complete(ctx, externalUserID, token, points, achievements...)
	switch {
	case errors.Is(err, ErrUserNotFound):
		out := ignored("user is not registered")
		out.MissionID = missionID
		return out, nil
	case errors.Is(err, ErrAlreadyCompleted):
		return &Outcome{Status: StatusAlreadyCompleted, MissionID: missionID, Token: token}, nil
	case err != nil:
		return nil, err
	}
	return &Outcome{
		Status:          StatusAwarded,
		MissionID:       missionID,
		Token:           token,
		Awarded:         points,
		Points:          res.Points,
		Level:           res.Level,
		NewAchievements: res.NewAchievements,
	}, nil
}

// Complete claims token for the user, awards points and grants the given
// achievements, all in one transaction. A token already claimed returns
// ErrAlreadyCompleted and changes nothing.
func (d *Dispatcher) Complete(ctx context.Context, externalUserID int64, token models.CompletionToken, points int64, achievements ...string) (*AwardResult, error) {
	if err := token.Validate(); err != nil {
		return nil, err
	}
	if points <= 0 {
		return nil, invalidf("points must be positive, got %d", points)
	}
	for _, name := range achievements {
		if strings.TrimSpace(name) == "" {
			return nil, invalidf("achievement name is required")
		}
	}

	var res *AwardResult
	err := d.Store.Transaction(ctx, func(tx store.Tx) error {
		u, err := tx.LockUser(externalUserID)
		if err != nil {
			return userErr(err)
		}
		if !claim(u, token) {
			return ErrAlreadyCompleted
		}
		res, err = d.Progression.apply(u, points)
		if err != nil {
			return err
		}
		for _, name := range achievements {
			if grant(u, name) {
				res.NewAchievements = append(res.NewAchievements, name)
			}
		}
		return tx.SaveUser(u)
	})
	if err != nil {
		return nil, err
	}

	d.Progression.observe(externalUserID, points, res)
	return res, nil
}
