package repository

import (
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/camden-git/faceidbackend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var sqlBuilder = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// SimilarityRepository handles database operations for the face similarity
// store. Scores are keyed by the normalized unordered face pair plus the
// comparison method.
type SimilarityRepository struct {
	DB *gorm.DB
}

// NewSimilarityRepository creates a new instance of SimilarityRepository
func NewSimilarityRepository(db *gorm.DB) *SimilarityRepository {
	return &SimilarityRepository{DB: db}
}

// Upsert stores a similarity score for the unordered pair and method. A
// second write for the same key supersedes the first; scores are otherwise
// immutable.
func (r *SimilarityRepository) Upsert(faceA, faceB uint, score float64, method string) error {
	if faceA == faceB {
		return fmt.Errorf("cannot store similarity of face ID %d to itself", faceA)
	}
	a, b := models.NormalizePair(faceA, faceB)

	row := models.FaceSimilarity{
		FaceAID:          a,
		FaceBID:          b,
		Similarity:       score,
		ComparisonMethod: method,
		CreatedAt:        time.Now().Unix(),
	}
	err := r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "face_a_id"}, {Name: "face_b_id"}, {Name: "comparison_method"}},
		DoUpdates: clause.AssignmentColumns([]string{"similarity", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert similarity for faces %d/%d (%s): %w", a, b, method, err)
	}
	return nil
}

// Get retrieves the stored score for an unordered pair and method
func (r *SimilarityRepository) Get(faceA, faceB uint, method string) (*models.FaceSimilarity, error) {
	a, b := models.NormalizePair(faceA, faceB)
	var row models.FaceSimilarity
	err := r.DB.
		Where("face_a_id = ? AND face_b_id = ? AND comparison_method = ?", a, b, method).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get similarity for faces %d/%d (%s): %w", a, b, method, err)
	}
	return &row, nil
}

// GetSimilarFaces returns unassigned faces with a stored score at or above
// threshold against faceID, best first. The query joins against the face
// table from either side of the normalized pair, which is much clearer as
// hand-built SQL than through the ORM.
func (r *SimilarityRepository) GetSimilarFaces(faceID uint, threshold float64, limit int) ([]SimilarFace, error) {
	builder := sqlBuilder.
		Select(
			"CASE WHEN s.face_a_id = ? THEN s.face_b_id ELSE s.face_a_id END AS other_id",
			"s.similarity",
			"s.comparison_method",
		).
		From("face_similarities s").
		Join("detected_faces f ON f.id = CASE WHEN s.face_a_id = ? THEN s.face_b_id ELSE s.face_a_id END").
		Where(sq.Or{sq.Eq{"s.face_a_id": faceID}, sq.Eq{"s.face_b_id": faceID}}).
		Where(sq.GtOrEq{"s.similarity": threshold}).
		Where(sq.Eq{"f.identity_state": models.IdentityUnidentified}).
		OrderBy("s.similarity DESC", "other_id ASC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	sqlStr, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for GetSimilarFaces: %w", err)
	}
	// the CASE expressions each consume one placeholder ahead of the WHERE args
	args = append([]interface{}{faceID, faceID}, args...)

	sqlDB, err := r.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	rows, err := sqlDB.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute GetSimilarFaces query: %w", err)
	}
	defer rows.Close()

	var results []SimilarFace
	for rows.Next() {
		var sf SimilarFace
		if err := rows.Scan(&sf.FaceID, &sf.Similarity, &sf.ComparisonMethod); err != nil {
			return nil, fmt.Errorf("failed to scan similar face row: %w", err)
		}
		results = append(results, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating similar face rows: %w", err)
	}
	return results, nil
}

// ListAmongFaces returns every stored edge of one method whose endpoints are
// both in faceIDs; used to bulk-load the similarity graph for clustering
func (r *SimilarityRepository) ListAmongFaces(faceIDs []uint, method string) ([]models.FaceSimilarity, error) {
	if len(faceIDs) == 0 {
		return []models.FaceSimilarity{}, nil
	}
	var edges []models.FaceSimilarity
	err := r.DB.
		Where("comparison_method = ? AND face_a_id IN ? AND face_b_id IN ?", method, faceIDs, faceIDs).
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list similarities among %d faces: %w", len(faceIDs), err)
	}
	return edges, nil
}

// DeleteForFace removes every edge touching a face; used when a face is
// invalidated or re-clustered
func (r *SimilarityRepository) DeleteForFace(faceID uint) error {
	err := r.DB.
		Where("face_a_id = ? OR face_b_id = ?", faceID, faceID).
		Delete(&models.FaceSimilarity{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete similarities for face ID %d: %w", faceID, err)
	}
	return nil
}

// DeleteByMethod removes every edge computed with one comparison method;
// used by clustering rebuilds
func (r *SimilarityRepository) DeleteByMethod(method string) error {
	err := r.DB.Where("comparison_method = ?", method).Delete(&models.FaceSimilarity{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete similarities for method %s: %w", method, err)
	}
	return nil
}
