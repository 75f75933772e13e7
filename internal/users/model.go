package users

import (
	"strings"
	"time"
)

// Role is a participant role such as chairperson or secretary.
type Role struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"column:name;size:190;not null;uniqueIndex" json:"name"`
}

// TableName exposes the table backing roles.
func (Role) TableName() string {
	return "roles"
}

// User is a meeting participant that can be attached to subthemes.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;size:190;not null" json:"name"`
	Surname      string    `gorm:"column:surname;size:190;not null" json:"surname"`
	Patronymic   *string   `gorm:"column:patronymic;size:190" json:"patronymic"`
	RoleID       int64     `gorm:"column:role_id;not null;index" json:"role_id"`
	Telephone    string    `gorm:"column:telephone;size:64;not null" json:"telephone"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;size:255;not null" json:"-"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// FullName joins surname, name and patronymic the way protocols list attendees.
func (u User) FullName() string {
	parts := []string{u.Surname, u.Name}
	if u.Patronymic != nil {
		parts = append(parts, *u.Patronymic)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// UserInput carries the fields required to register a participant.
type UserInput struct {
	Name       string  `validate:"required,max=190"`
	Surname    string  `validate:"required,max=190"`
	Patronymic *string `validate:"omitempty,max=190"`
	RoleID     int64   `validate:"required,gt=0"`
	Telephone  string  `validate:"required,max=64"`
	Email      string  `validate:"required,email,max=320"`
	Password   string  `validate:"required,min=6,max=72"`
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
