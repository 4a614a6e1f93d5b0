package models

// FailedJob records a queue job that was given up on
type FailedJob struct {
	Base
	Queue    string `gorm:"not null;index" json:"queue"`
	JobID    string `gorm:"not null;uniqueIndex" json:"job_id"`
	Payload  string `gorm:"type:text" json:"payload"`
	Error    string `gorm:"type:text" json:"error"`
	Attempts int    `json:"attempts"`
}
