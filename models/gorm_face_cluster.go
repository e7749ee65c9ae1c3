package models

// FaceCluster is a grouping of unassigned faces believed to depict the same
// unidentified individual, using GORM. It corresponds to the 'face_clusters'
// table. FaceCount must always equal the number of FaceClusterMember rows
// for the cluster; it is recomputed when membership changes, never edited
// independently.
type FaceCluster struct {
	ID                  uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                string  `gorm:"not null" json:"name"`
	Algorithm           string  `gorm:"not null;index" json:"algorithm"`
	SimilarityThreshold float64 `gorm:"not null" json:"similarity_threshold"`
	FaceCount           int     `gorm:"not null;default:0" json:"face_count"`
	AvgSimilarity       float64 `gorm:"not null;default:0" json:"avg_similarity"`
	IsReviewed          bool    `gorm:"not null;default:false;index" json:"is_reviewed"`
	AssignedPersonID    *uint   `gorm:"index" json:"assigned_person_id,omitempty"`
	Notes               string  `json:"notes"`
	CreatedAt           int64   `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt           int64   `gorm:"not null" json:"updated_at"` // Unix timestamp

	Members []FaceClusterMember `gorm:"foreignKey:ClusterID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (FaceCluster) TableName() string {
	return "face_clusters"
}

// FaceClusterMember links a detected face into a cluster with its similarity
// to the rest of the cluster. Exactly one member per cluster carries
// IsRepresentative once representatives are computed; the flag is moved via
// a set-then-clear transaction, not a database constraint.
type FaceClusterMember struct {
	ID                  uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	ClusterID           uint    `gorm:"not null;uniqueIndex:idx_cluster_face;index" json:"cluster_id"`
	FaceID              uint    `gorm:"not null;uniqueIndex:idx_cluster_face;index" json:"face_id"`
	SimilarityToCluster float64 `gorm:"not null" json:"similarity_to_cluster"`
	IsRepresentative    bool    `gorm:"not null;default:false" json:"is_representative"`
	CreatedAt           int64   `gorm:"not null" json:"created_at"` // Unix timestamp

	Face *DetectedFace `gorm:"foreignKey:FaceID" json:"face,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (FaceClusterMember) TableName() string {
	return "face_cluster_members"
}
