package models

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// User is a player's ledger row. Identity comes from the messaging platform;
// the uuid primary key is local to this service.
type User struct {
	ID             string  `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ExternalUserID int64   `gorm:"uniqueIndex;not null" json:"external_user_id"`
	DisplayName    *string `json:"display_name,omitempty"`

	// Progression
	Points int64 `gorm:"not null;default:0;check:points >= 0" json:"points"`
	Level  int   `gorm:"not null;default:1" json:"level"`

	// Grant-once sets
	Achievements      Set[string]          `gorm:"not null" json:"achievements"`
	CompletedMissions Set[CompletionToken] `gorm:"not null" json:"completed_missions"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewUser returns a fresh level-1 user with empty sets.
func NewUser(id string, externalUserID int64, displayName string) *User {
	u := &User{
		ID:                id,
		ExternalUserID:    externalUserID,
		Level:             1,
		Achievements:      Set[string]{},
		CompletedMissions: Set[CompletionToken]{},
	}
	if displayName != "" {
		u.DisplayName = &displayName
	}
	return u
}

// AfterFind makes sure rows with NULL set columns still load as empty sets.
func (u *User) AfterFind(tx *gorm.DB) error {
	if u.Achievements == nil {
		u.Achievements = Set[string]{}
	}
	if u.CompletedMissions == nil {
		u.CompletedMissions = Set[CompletionToken]{}
	}
	return nil
}

// Clone deep-copies the user, including its sets.
func (u *User) Clone() *User {
	cp := *u
	if u.DisplayName != nil {
		name := *u.DisplayName
		cp.DisplayName = &name
	}
	cp.Achievements = u.Achievements.Clone()
	cp.CompletedMissions = u.CompletedMissions.Clone()
	return &cp
}

// Name is the display name, falling back to the external id.
func (u *User) Name() string {
	if u.DisplayName != nil && *u.DisplayName != "" {
		return *u.DisplayName
	}
	return strconv.FormatInt(u.ExternalUserID, 10)
}

// ResetProgress puts the user back at the start of a season.
func (u *User) ResetProgress() {
	u.Points = 0
	u.Level = 1
	u.Achievements = Set[string]{}
	u.CompletedMissions = Set[CompletionToken]{}
}
