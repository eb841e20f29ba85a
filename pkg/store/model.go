package store

import "time"

// SessionRecord is the durable row backing one Session's last-known-good
// state: enough to rehydrate a Session after a server restart without
// replaying every delta a device ever applied.
type SessionRecord struct {
	ID            string    `gorm:"primaryKey;size:128" json:"id"`
	Token         string    `gorm:"not null;size:256" json:"-"`
	LastSequence  int64     `gorm:"default:0" json:"lastSequence"`
	SchemaVersion string    `gorm:"size:64" json:"schemaVersion,omitempty"`
	SchemaJSON    []byte    `json:"-"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName returns the table name for SessionRecord.
func (SessionRecord) TableName() string {
	return "sessions"
}

// AllModels lists every model migrated by the SQLite (AutoMigrate) path.
func AllModels() []any {
	return []any{&SessionRecord{}}
}
