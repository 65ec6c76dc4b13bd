package models

import "fmt"

// EventKind discriminates inbound mission-completion events.
type EventKind string

const (
	EventTest         EventKind = "test"
	EventPostReaction EventKind = "post_reaction"
	EventPollAnswer   EventKind = "poll_answer"
)

// Event is a mission-completion signal from the messaging glue, resolved to
// explicit fields before it reaches the ledger.
//
// Post reactions carry either the mission id or the channel message id of
// the post; poll answers carry the platform poll id.
type Event struct {
	Kind           EventKind `json:"kind"`
	ExternalUserID int64     `json:"external_user_id"`
	ChatID         int64     `json:"chat_id,omitempty"`
	MissionID      uint      `json:"mission_id,omitempty"`
	PostID         int64     `json:"post_id,omitempty"`
	PollID         string    `json:"poll_id,omitempty"`
}

func (e Event) Validate() error {
	if e.ExternalUserID == 0 {
		return fmt.Errorf("event is missing external_user_id")
	}
	switch e.Kind {
	case EventTest:
		return nil
	case EventPostReaction:
		if e.MissionID == 0 && e.PostID == 0 {
			return fmt.Errorf("post reaction needs mission_id or post_id")
		}
		return nil
	case EventPollAnswer:
		if e.PollID == "" {
			return fmt.Errorf("poll answer needs poll_id")
		}
		return nil
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
}
