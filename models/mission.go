package models

import (
	"fmt"
	"time"
)

// MissionType tags how a mission is completed.
type MissionType string

const (
	MissionTypeTest  MissionType = "test"
	MissionTypePost  MissionType = "post"
	MissionTypePoll  MissionType = "poll"
	MissionTypeDaily MissionType = "daily"
)

func (t MissionType) Valid() bool {
	switch t {
	case MissionTypeTest, MissionTypePost, MissionTypePoll, MissionTypeDaily:
		return true
	}
	return false
}

// Mission is something users complete for points. PostID and PollID are
// filled in right after the channel post or poll is published so inbound
// reactions and answers can be routed back here.
type Mission struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Code        *string     `gorm:"uniqueIndex" json:"code,omitempty"` // set for catalog-seeded missions
	Title       string      `gorm:"not null" json:"title"`
	Description string      `json:"description"`
	Points      int64       `gorm:"not null" json:"points"`
	Type        MissionType `gorm:"type:varchar(16);not null;index" json:"type"`
	Active      bool        `gorm:"not null;index" json:"active"`

	// Correlation
	PostID *int64  `gorm:"index" json:"post_id,omitempty"`
	PollID *string `gorm:"uniqueIndex" json:"poll_id,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (m *Mission) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("mission title is required")
	}
	if m.Points <= 0 {
		return fmt.Errorf("mission points must be positive, got %d", m.Points)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("unknown mission type %q", m.Type)
	}
	return nil
}

// Token is the completion token claimed when this mission is completed.
func (m *Mission) Token() CompletionToken {
	return MissionToken(m.ID)
}

func (m *Mission) Clone() *Mission {
	cp := *m
	if m.Code != nil {
		v := *m.Code
		cp.Code = &v
	}
	if m.PostID != nil {
		v := *m.PostID
		cp.PostID = &v
	}
	if m.PollID != nil {
		v := *m.PollID
		cp.PollID = &v
	}
	return &cp
}
