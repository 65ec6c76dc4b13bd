package services

import (
	"errors"
	"fmt"

	"mission-ledger/models"
	"mission-ledger/store"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrRewardNotFound  = fmt.Errorf("reward %w", ErrNotFound)
	ErrMissionNotFound = fmt.Errorf("mission %w", ErrNotFound)

	ErrAlreadyCompleted   = errors.New("already completed")
	ErrOutOfStock         = errors.New("reward out of stock")
	ErrInsufficientPoints = errors.New("insufficient points")
	ErrInvalidArgument    = errors.New("invalid argument")

	// ErrStoreUnavailable is the store's own sentinel, so errors.Is works on
	// anything a backend returns.
	ErrStoreUnavailable = store.ErrUnavailable
)

// ErrorKind names the error classes surfaced to callers.
type ErrorKind string

const (
	KindNone               ErrorKind = ""
	KindNotFound           ErrorKind = "not_found"
	KindAlreadyCompleted   ErrorKind = "already_completed"
	KindOutOfStock         ErrorKind = "out_of_stock"
	KindInsufficientPoints ErrorKind = "insufficient_points"
	KindInvalidArgument    ErrorKind = "invalid_argument"
	KindStoreUnavailable   ErrorKind = "store_unavailable"
)

// Kind classifies err. Unrecognized errors are treated as store failures.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyCompleted):
		return KindAlreadyCompleted
	case errors.Is(err, ErrOutOfStock):
		return KindOutOfStock
	case errors.Is(err, ErrInsufficientPoints):
		return KindInsufficientPoints
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, models.ErrMalformedToken):
		return KindInvalidArgument
	default:
		return KindStoreUnavailable
	}
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// userErr maps a store lookup failure for a user.
func userErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

func rewardErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrRewardNotFound
	}
	return err
}

func missionErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrMissionNotFound
	}
	return err
}
