package models

// IdentityState values for DetectedFace. The state is the authority on what
// PersonID means: PersonID is only meaningful while the state is
// IdentityAssigned.
const (
	IdentityUnidentified = "unidentified"
	IdentityAssigned     = "assigned"
	IdentityInvalid      = "invalid" // marked not-a-face
	IdentityUnknown      = "unknown" // real face, background person
)

// RecognitionMethod values describe how a face was linked to a person.
const (
	MethodManual           = "manual"
	MethodAuto             = "auto"
	MethodClustering       = "clustering"
	MethodServiceConfirmed = "service_confirmed"
	MethodManualOverride   = "manual_override"
)

// SyncStatus values track whether a face has been uploaded to the external
// recognition engine.
const (
	SyncStatusNotSynced  = "not_synced"
	SyncStatusSynced     = "synced"
	SyncStatusSyncFailed = "sync_failed"
)

// DetectedFace represents a single face found in one image, using GORM.
// It corresponds to the 'detected_faces' table. Rows are created by the
// detection step and are never deleted by the identity pipeline; invalid and
// unknown are terminal sentinel states, not deletions.
type DetectedFace struct {
	ID                  uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	ImagePath           string  `gorm:"not null;index" json:"image_path"`
	XMin                int     `gorm:"not null" json:"x_min"`
	YMin                int     `gorm:"not null" json:"y_min"`
	XMax                int     `gorm:"not null" json:"x_max"`
	YMax                int     `gorm:"not null" json:"y_max"`
	DetectionConfidence float64 `gorm:"not null" json:"detection_confidence"`

	// optional demographic predictions from the detector
	PredictedGender  *string  `json:"predicted_gender,omitempty"`
	GenderConfidence *float64 `json:"gender_confidence,omitempty"`
	PredictedAgeLow  *int     `json:"predicted_age_low,omitempty"`
	PredictedAgeHigh *int     `json:"predicted_age_high,omitempty"`
	AgeConfidence    *float64 `json:"age_confidence,omitempty"`

	// optional embedding blob produced by the detector; faces without one
	// fall back to bounding-box similarity during clustering
	Embedding []byte `gorm:"column:embedding" json:"-"`

	IdentityState     string   `gorm:"not null;default:'unidentified';index" json:"identity_state"`
	PersonID          *uint    `gorm:"index" json:"person_id,omitempty"`
	RecognitionMethod *string  `json:"recognition_method,omitempty"`
	MatchConfidence   *float64 `json:"match_confidence,omitempty"`

	SyncStatus     string  `gorm:"not null;default:'not_synced';index" json:"sync_status"`
	ExternalFaceID *string `gorm:"index" json:"external_face_id,omitempty"` // face handle in the engine once synced

	AssignedAt *int64  `json:"assigned_at,omitempty"`
	AssignedBy *string `json:"assigned_by,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"` // Unix timestamp

	Person *Person `gorm:"foreignKey:PersonID" json:"person,omitempty"` // Belongs to Person
}

// TableName explicitly sets the table name for GORM.
func (DetectedFace) TableName() string {
	return "detected_faces"
}

// IsAssignable reports whether the face is still a candidate for clustering
// and assignment (not yet assigned and not sentinel-flagged).
func (f *DetectedFace) IsAssignable() bool {
	return f.IdentityState == IdentityUnidentified
}
