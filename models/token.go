package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CompletionToken identifies something a user can complete at most once:
// either a mission (by id) or a one-off action (by key).
//
// Mission tokens render as "mission:<id>"; one-off keys are stored verbatim
// and may not contain a colon, so the two forms never collide.
type CompletionToken string

const missionTokenPrefix = "mission:"

// TestMissionToken is claimed by the one-off "try me" action.
const TestMissionToken CompletionToken = "test_mission"

var ErrMalformedToken = errors.New("malformed completion token")

// MissionToken returns the token for a mission id.
func MissionToken(missionID uint) CompletionToken {
	return CompletionToken(missionTokenPrefix + strconv.FormatUint(uint64(missionID), 10))
}

// KeyToken returns the token for a one-off action key.
func KeyToken(key string) (CompletionToken, error) {
	t := CompletionToken(strings.TrimSpace(key))
	if err := t.Validate(); err != nil {
		return "", err
	}
	if _, ok := t.MissionID(); ok {
		return "", fmt.Errorf("%w: %q is reserved for missions", ErrMalformedToken, key)
	}
	return t, nil
}

// MissionID reports the mission id if t is a mission token.
func (t CompletionToken) MissionID() (uint, bool) {
	rest, ok := strings.CutPrefix(string(t), missionTokenPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (t CompletionToken) Validate() error {
	s := string(t)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrMalformedToken)
	}
	if strings.HasPrefix(s, missionTokenPrefix) {
		if _, ok := t.MissionID(); !ok {
			return fmt.Errorf("%w: bad mission id in %q", ErrMalformedToken, s)
		}
		return nil
	}
	if strings.ContainsAny(s, ": \t\n") {
		return fmt.Errorf("%w: %q", ErrMalformedToken, s)
	}
	return nil
}

func (t CompletionToken) String() string { return string(t) }
