package models

import "time"

// SystemConfig is a key-value pair of server settings.
type SystemConfig struct {
	ID        int64
	Key       string
	Value     string
	UpdatedAt time.Time
}

// AdminUser is an account allowed to use the admin API.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeviceMessage is the text shown on a phone's prompt line.
type DeviceMessage struct {
	DeviceID  string
	Message   string
	UpdatedAt time.Time
}
