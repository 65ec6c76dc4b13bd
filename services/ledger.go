package services

import (
	"mission-ledger/store"

	"go.uber.org/zap"
)

// Ledger bundles every service over one store. Handlers, workers and the
// CLI take a *Ledger.
type Ledger struct {
	Store       store.Store
	Log         *zap.Logger
	Guard       *IdempotencyGuard
	Progression *ProgressionService
	Badges      *BadgeService
	Rewards     *RewardService
	Missions    *MissionService
	Users       *UserService
	Dispatcher  *Dispatcher
	Seasons     *SeasonService
}

// NewLedger wires the services. levels may be nil for the default table;
// archiver may be nil to reset seasons without a snapshot.
func NewLedger(s store.Store, levels LevelTable, archiver Archiver, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		log = zap.NewNop()
	}
	progression, err := NewProgressionService(s, levels, log.Named("progression"))
	if err != nil {
		return nil, err
	}
	return &Ledger{
		Store:       s,
		Log:         log,
		Guard:       NewIdempotencyGuard(s),
		Progression: progression,
		Badges:      NewBadgeService(s, log.Named("badges")),
		Rewards:     NewRewardService(s, log.Named("rewards")),
		Missions:    NewMissionService(s, log.Named("missions")),
		Users:       NewUserService(s, log.Named("users")),
		Dispatcher:  NewDispatcher(s, progression, log.Named("dispatcher")),
		Seasons:     NewSeasonService(s, archiver, log.Named("seasons")),
	}, nil
}
