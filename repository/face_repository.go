package repository

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/camden-git/faceidbackend/models"
	"gorm.io/gorm"
)

// FaceRepository handles database operations for DetectedFace entities
type FaceRepository struct {
	DB *gorm.DB
}

// NewFaceRepository creates a new instance of FaceRepository
func NewFaceRepository(db *gorm.DB) *FaceRepository {
	return &FaceRepository{DB: db}
}

// Create creates a new detected face record in the database
func (r *FaceRepository) Create(face *models.DetectedFace) error {
	now := time.Now().Unix()
	if face.CreatedAt == 0 {
		face.CreatedAt = now
	}
	face.UpdatedAt = now
	face.ImagePath = filepath.ToSlash(face.ImagePath)
	if face.IdentityState == "" {
		face.IdentityState = models.IdentityUnidentified
	}
	if face.SyncStatus == "" {
		face.SyncStatus = models.SyncStatusNotSynced
	}

	err := r.DB.Create(face).Error
	if err != nil {
		return fmt.Errorf("failed to create face for image %s: %w", face.ImagePath, err)
	}
	return nil
}

// GetByID retrieves a face by its ID, preloading the associated Person
func (r *FaceRepository) GetByID(id uint) (*models.DetectedFace, error) {
	var face models.DetectedFace
	err := r.DB.Preload("Person").First(&face, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get face by ID %d: %w", id, err)
	}
	return &face, nil
}

// GetByIDs retrieves several faces at once, ordered by id ascending
func (r *FaceRepository) GetByIDs(ids []uint) ([]models.DetectedFace, error) {
	if len(ids) == 0 {
		return []models.DetectedFace{}, nil
	}
	var faces []models.DetectedFace
	err := r.DB.Where("id IN ?", ids).Order("id ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get faces by IDs: %w", err)
	}
	return faces, nil
}

// ListByImagePath retrieves all faces for a given image path
func (r *FaceRepository) ListByImagePath(imagePath string) ([]models.DetectedFace, error) {
	cleanPath := filepath.ToSlash(imagePath)
	var faces []models.DetectedFace
	err := r.DB.Preload("Person").Where("image_path = ?", cleanPath).Order("id ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for image %s: %w", cleanPath, err)
	}
	return faces, nil
}

// ListUnassigned retrieves all faces still eligible for clustering and
// assignment, ordered by id ascending so clustering input is reproducible
func (r *FaceRepository) ListUnassigned() ([]models.DetectedFace, error) {
	var faces []models.DetectedFace
	err := r.DB.Where("identity_state = ?", models.IdentityUnidentified).Order("id ASC").Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned faces: %w", err)
	}
	return faces, nil
}

// Assign links a face to a person. The face leaves the clustering candidate
// pool and becomes due for upload on the next training pass.
func (r *FaceRepository) Assign(faceID, personID uint, confidence *float64, method string, assignedBy *string) error {
	now := time.Now().Unix()
	updates := map[string]interface{}{
		"identity_state":     models.IdentityAssigned,
		"person_id":          personID,
		"recognition_method": method,
		"match_confidence":   confidence,
		"sync_status":        models.SyncStatusNotSynced,
		"assigned_at":        now,
		"assigned_by":        assignedBy,
		"updated_at":         now,
	}
	result := r.DB.Model(&models.DetectedFace{}).Where("id = ?", faceID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to assign face ID %d to person ID %d: %w", faceID, personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearAssignment returns a face to the unidentified pool. The engine-side
// copy is intentionally left in place; the consistency manager reconciles it.
func (r *FaceRepository) ClearAssignment(faceID uint) error {
	updates := map[string]interface{}{
		"identity_state":     models.IdentityUnidentified,
		"person_id":          gorm.Expr("NULL"),
		"recognition_method": models.MethodManual,
		"match_confidence":   gorm.Expr("NULL"),
		"sync_status":        models.SyncStatusNotSynced,
		"assigned_at":        gorm.Expr("NULL"),
		"assigned_by":        gorm.Expr("NULL"),
		"updated_at":         time.Now().Unix(),
	}
	result := r.DB.Model(&models.DetectedFace{}).Where("id = ?", faceID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to clear assignment for face ID %d: %w", faceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetSentinel flags a face invalid or unknown. Sentinel states are terminal
// and keep the row out of clustering and assignment without deleting it.
func (r *FaceRepository) SetSentinel(faceID uint, state string) error {
	if state != models.IdentityInvalid && state != models.IdentityUnknown {
		return fmt.Errorf("invalid sentinel state %q for face ID %d", state, faceID)
	}
	updates := map[string]interface{}{
		"identity_state":     state,
		"person_id":          gorm.Expr("NULL"),
		"recognition_method": models.MethodManual,
		"updated_at":         time.Now().Unix(),
	}
	result := r.DB.Model(&models.DetectedFace{}).Where("id = ?", faceID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set sentinel state %s on face ID %d: %w", state, faceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateSyncStatus records the result of an upload attempt for a face
func (r *FaceRepository) UpdateSyncStatus(faceID uint, status string, externalFaceID *string) error {
	updates := map[string]interface{}{
		"sync_status": status,
		"updated_at":  time.Now().Unix(),
	}
	if externalFaceID != nil {
		updates["external_face_id"] = *externalFaceID
	}
	result := r.DB.Model(&models.DetectedFace{}).Where("id = ?", faceID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update sync status for face ID %d: %w", faceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResetSyncStatus marks faces not-synced again so the training queue will
// re-upload them; used by consistency repair
func (r *FaceRepository) ResetSyncStatus(faceIDs []uint) error {
	if len(faceIDs) == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"sync_status":      models.SyncStatusNotSynced,
		"external_face_id": gorm.Expr("NULL"),
		"updated_at":       time.Now().Unix(),
	}
	err := r.DB.Model(&models.DetectedFace{}).Where("id IN ?", faceIDs).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to reset sync status for %d faces: %w", len(faceIDs), err)
	}
	return nil
}

// ListForTraining returns a person's assigned faces that still need upload
func (r *FaceRepository) ListForTraining(personID uint) ([]models.DetectedFace, error) {
	var faces []models.DetectedFace
	err := r.DB.
		Where("person_id = ? AND identity_state = ? AND sync_status <> ?",
			personID, models.IdentityAssigned, models.SyncStatusSynced).
		Order("id ASC").
		Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list training faces for person ID %d: %w", personID, err)
	}
	return faces, nil
}

// ListSyncedByPerson returns a person's faces the local database believes
// are present in the engine
func (r *FaceRepository) ListSyncedByPerson(personID uint) ([]models.DetectedFace, error) {
	var faces []models.DetectedFace
	err := r.DB.
		Where("person_id = ? AND identity_state = ? AND sync_status = ?",
			personID, models.IdentityAssigned, models.SyncStatusSynced).
		Order("id ASC").
		Find(&faces).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list synced faces for person ID %d: %w", personID, err)
	}
	return faces, nil
}

// CountAssigned counts a person's faces in the assigned state
func (r *FaceRepository) CountAssigned(personID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.DetectedFace{}).
		Where("person_id = ? AND identity_state = ?", personID, models.IdentityAssigned).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count assigned faces for person ID %d: %w", personID, err)
	}
	return count, nil
}

// CountPendingSync counts a person's assigned faces not yet synced
func (r *FaceRepository) CountPendingSync(personID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&models.DetectedFace{}).
		Where("person_id = ? AND identity_state = ? AND sync_status <> ?",
			personID, models.IdentityAssigned, models.SyncStatusSynced).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending-sync faces for person ID %d: %w", personID, err)
	}
	return count, nil
}
