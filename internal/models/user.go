package models

import "time"

// User represents a registered user of the catalog API.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username" gorm:"uniqueIndex;type:varchar(50);not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;type:varchar(100);not null"`
	PasswordHash []byte    `json:"-" gorm:"not null"` // Never serialized
	PasswordSalt []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
