package models

// ComparisonMethod values for FaceSimilarity.
const (
	ComparisonEmbedding   = "embedding"
	ComparisonExternalAPI = "external_api"
	ComparisonBoundingBox = "bbox_overlap"
	ComparisonManual      = "manual"
)

// FaceSimilarity is an undirected similarity edge between two detected
// faces under one comparison method, using GORM. It corresponds to the
// 'face_similarities' table. The pair is stored normalized with
// FaceAID < FaceBID so that at most one row exists per unordered pair and
// method. Rows are never mutated in place, only superseded by a rebuild.
type FaceSimilarity struct {
	ID               uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	FaceAID          uint    `gorm:"not null;uniqueIndex:idx_face_pair_method;index" json:"face_a_id"`
	FaceBID          uint    `gorm:"not null;uniqueIndex:idx_face_pair_method;index" json:"face_b_id"`
	Similarity       float64 `gorm:"not null" json:"similarity"` // score in [0,1]
	ComparisonMethod string  `gorm:"not null;uniqueIndex:idx_face_pair_method" json:"comparison_method"`
	CreatedAt        int64   `gorm:"not null" json:"created_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (FaceSimilarity) TableName() string {
	return "face_similarities"
}

// NormalizePair orders two face IDs so the smaller one comes first, matching
// the storage convention for FaceSimilarity rows.
func NormalizePair(faceA, faceB uint) (uint, uint) {
	if faceA > faceB {
		return faceB, faceA
	}
	return faceA, faceB
}

// OtherFace returns the face on the opposite side of the edge from faceID.
func (fs *FaceSimilarity) OtherFace(faceID uint) uint {
	if fs.FaceAID == faceID {
		return fs.FaceBID
	}
	return fs.FaceAID
}
