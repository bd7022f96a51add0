package models

import "time"

// Group is a chat group (e.g. the participants of one order:
// customer, vendor, driver).
type Group struct {
	BaseModel
	Name    string `gorm:"not null"`
	OrderID *string

	Members []GroupMember `gorm:"foreignKey:GroupID"`
}

type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;type:uuid"`
	UserID   string    `gorm:"primaryKey;type:uuid"`
	JoinedAt time.Time `gorm:"default:now()"`
}
