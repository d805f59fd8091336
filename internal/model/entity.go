package model

import "time"

// InterviewSession is the durable session record (GORM).
type InterviewSession struct {
	ID         string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Kind       string     `gorm:"size:20;not null"`
	Status     string     `gorm:"size:20;not null;default:waiting"` // waiting, active, finished
	CreatedAt  time.Time  `gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime"`
	FinishedAt *time.Time `gorm:"column:finished_at"`

	Violations []SessionViolation `gorm:"foreignKey:SessionID"`
}

func (InterviewSession) TableName() string { return "interview_sessions" }

// SessionViolation is one persisted integrity violation (GORM).
type SessionViolation struct {
	ID            string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID     string    `gorm:"type:uuid;not null;index"`
	ViolationType string    `gorm:"size:32;not null;index"`
	Detail        string    `gorm:"size:512"`
	OccurredAt    time.Time `gorm:"column:occurred_at;not null"`
}

func (SessionViolation) TableName() string { return "session_violations" }

// SessionReportEntity is the end-of-session summary row (GORM).
type SessionReportEntity struct {
	ID              string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionID       string    `gorm:"type:uuid;not null;uniqueIndex"`
	DurationSeconds int64     `gorm:"not null"`
	ChatMessages    int       `gorm:"not null"`
	TabSwitches     int       `gorm:"not null;default:0"`
	Pastes          int       `gorm:"not null;default:0"`
	VirtualDevices  int       `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (SessionReportEntity) TableName() string { return "session_reports" }
