package models

// RecognitionStatus values for Person.
const (
	RecognitionUntrained = "untrained"
	RecognitionTraining  = "training"
	RecognitionTrained   = "trained"
	RecognitionFailed    = "failed"
)

// Person represents an identity in the database using GORM.
// It corresponds to the 'people' table. Name and notes are shared with the
// rest of the platform; face_count, recognition_status and the training
// fields are owned exclusively by the identity pipeline. FaceCount is a
// cache over assigned DetectedFace rows and is recomputed on every
// assignment mutation, never trusted as independently authoritative.
type Person struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	PrimaryName string `gorm:"not null" json:"primary_name"`
	Notes       string `json:"notes"`

	// handle of the matching subject in the external recognition engine;
	// nil until the first training pass creates it
	ExternalSubjectID *string `gorm:"index" json:"external_subject_id,omitempty"`

	FaceCount         int    `gorm:"not null;default:0" json:"face_count"`
	RecognitionStatus string `gorm:"not null;default:'untrained'" json:"recognition_status"`
	TrainingFaceCount int    `gorm:"not null;default:0" json:"training_face_count"`
	LastTrainedAt     *int64 `json:"last_trained_at,omitempty"`
	AutoRecognize     bool   `gorm:"not null;default:false" json:"auto_recognize"`

	CreatedAt int64 `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"` // Unix timestamp

	Faces []DetectedFace `gorm:"foreignKey:PersonID;constraint:OnDelete:SET NULL" json:"faces,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Person) TableName() string {
	return "people"
}
