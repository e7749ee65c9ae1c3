package models

// TrainingType values for TrainingJob.
const (
	TrainingFull        = "full"
	TrainingIncremental = "incremental"
	TrainingValidation  = "validation"
)

// TrainingJob status values. Completed, failed and cancelled are terminal;
// failed jobs may be re-queued as a fresh pending job via retry, cancelled
// jobs may not.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// TrainingJob is one unit of training work for a person, using GORM.
// It corresponds to the 'training_jobs' table. Rows are created by queueing
// and mutated only by the training queue worker.
type TrainingJob struct {
	ID           uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	PersonID     uint    `gorm:"not null;index" json:"person_id"`
	TrainingType string  `gorm:"not null;default:'incremental'" json:"training_type"`
	Status       string  `gorm:"not null;default:'pending';index" json:"status"`
	FacesAdded   int     `gorm:"not null;default:0" json:"faces_added"`
	FacesFailed  int     `gorm:"not null;default:0" json:"faces_failed"`
	SuccessRate  float64 `gorm:"not null;default:0" json:"success_rate"`
	ErrorMessage *string `json:"error_message,omitempty"`
	CreatedAt    int64   `gorm:"not null" json:"created_at"` // Unix timestamp
	StartedAt    *int64  `json:"started_at,omitempty"`
	CompletedAt  *int64  `json:"completed_at,omitempty"`

	Person *Person `gorm:"foreignKey:PersonID" json:"person,omitempty"` // Belongs to Person
}

// TableName explicitly sets the table name for GORM.
func (TrainingJob) TableName() string {
	return "training_jobs"
}

// IsTerminal reports whether the job has reached a final state.
func (j *TrainingJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}
