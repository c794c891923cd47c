package models

import (
	"time"

	"gorm.io/gorm"
)

type MembershipRole string

const (
	MemberStudent    MembershipRole = "student"
	MemberInstructor MembershipRole = "instructor"
)

type Group struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Name     string `json:"name" gorm:"not null;size:200" validate:"required,max=200"`
	CourseID uint   `json:"course_id" gorm:"not null;index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Members []GroupMembership `json:"members,omitempty" gorm:"foreignKey:GroupID"`
}

// GroupMembership records a user's enrollment in a group. The Allocator
// materializes one TestInstance per active student membership.
type GroupMembership struct {
	ID      uint           `json:"id" gorm:"primaryKey"`
	GroupID uint           `json:"group_id" gorm:"not null;index;uniqueIndex:idx_group_member"`
	UserID  string         `json:"user_id" gorm:"not null;index;size:255;uniqueIndex:idx_group_member"`
	Role    MembershipRole `json:"role" gorm:"not null;default:student"`
	Active  bool           `json:"active" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Group Group `json:"-" gorm:"foreignKey:GroupID"`
}

func (Group) TableName() string {
	return "groups"
}

func (GroupMembership) TableName() string {
	return "group_memberships"
}
