package services

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "points_awarded_total",
		Help:      "Points credited to users.",
	})

	achievementsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "achievements_granted_total",
		Help:      "Achievements granted, by kind.",
	}, []string{"kind"})

	dispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "dispatch_outcomes_total",
		Help:      "Dispatched events by kind and outcome status.",
	}, []string{"kind", "status"})

	redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "redemptions_total",
		Help:      "Redemption attempts by result.",
	}, []string{"result"})

	seasonResets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "season_resets_total",
		Help:      "Completed season resets.",
	})
)

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(Kind(err))
}

// achievementKind keeps the achievements label bounded. Admin routes accept
// arbitrary names, which all count as custom.
func achievementKind(name string) string {
	switch name {
	case AchievementFirstReaction:
		return "first_reaction"
	case AchievementFirstPoll:
		return "first_poll"
	}
	if n, ok := strings.CutPrefix(name, "Level "); ok {
		if n, ok = strings.CutSuffix(n, " Reached"); ok {
			if _, err := strconv.Atoi(n); err == nil {
				return "level"
			}
		}
	}
	return "custom"
}
