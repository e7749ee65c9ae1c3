package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/faceidbackend/models"
	"gorm.io/gorm"
)

// PersonRepository handles database operations for Person entities
type PersonRepository struct {
	DB *gorm.DB
}

// NewPersonRepository creates a new instance of PersonRepository
func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{DB: db}
}

// Create creates a new person record in the database
func (r *PersonRepository) Create(person *models.Person) error {
	now := time.Now().Unix()
	if person.CreatedAt == 0 {
		person.CreatedAt = now
	}
	if person.UpdatedAt == 0 {
		person.UpdatedAt = now
	}
	if person.RecognitionStatus == "" {
		person.RecognitionStatus = models.RecognitionUntrained
	}

	err := r.DB.Create(person).Error
	if err != nil {
		return fmt.Errorf("failed to create person %s: %w", person.PrimaryName, err)
	}
	return nil
}

// GetByID retrieves a person by their ID
func (r *PersonRepository) GetByID(id uint) (*models.Person, error) {
	var person models.Person
	err := r.DB.First(&person, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get person by ID %d: %w", id, err)
	}
	return &person, nil
}

// ListAll retrieves all people, ordered by primary_name
func (r *PersonRepository) ListAll() ([]models.Person, error) {
	var people []models.Person
	err := r.DB.Order("primary_name ASC").Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return people, nil
}

// Update updates the externally-editable fields of a person (name, notes,
// auto_recognize); training bookkeeping goes through the dedicated methods
func (r *PersonRepository) Update(person *models.Person) error {
	updates := map[string]interface{}{
		"primary_name":   person.PrimaryName,
		"notes":          person.Notes,
		"auto_recognize": person.AutoRecognize,
		"updated_at":     time.Now().Unix(),
	}
	result := r.DB.Model(&models.Person{}).Where("id = ?", person.ID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update person ID %d: %w", person.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a person by their ID
func (r *PersonRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Person{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete person ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetExternalSubjectID records the engine subject handle minted for a person
func (r *PersonRepository) SetExternalSubjectID(personID uint, subjectID string) error {
	updates := map[string]interface{}{
		"external_subject_id": subjectID,
		"updated_at":          time.Now().Unix(),
	}
	result := r.DB.Model(&models.Person{}).Where("id = ?", personID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to set subject ID for person ID %d: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearExternalSubjectID forgets a person's engine subject handle so the
// next training pass mints a fresh subject
func (r *PersonRepository) ClearExternalSubjectID(personID uint) error {
	updates := map[string]interface{}{
		"external_subject_id": gorm.Expr("NULL"),
		"updated_at":          time.Now().Unix(),
	}
	result := r.DB.Model(&models.Person{}).Where("id = ?", personID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to clear subject ID for person ID %d: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetBySubjectID retrieves the person owning an engine subject handle
func (r *PersonRepository) GetBySubjectID(subjectID string) (*models.Person, error) {
	var person models.Person
	err := r.DB.Where("external_subject_id = ?", subjectID).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get person by subject ID %s: %w", subjectID, err)
	}
	return &person, nil
}

// RecomputeFaceCount refreshes the cached face_count from the live count of
// assigned faces. The cache is never trusted as independently authoritative.
func (r *PersonRepository) RecomputeFaceCount(personID uint) error {
	err := r.DB.Model(&models.Person{}).Where("id = ?", personID).Updates(map[string]interface{}{
		"face_count": gorm.Expr(
			"(SELECT COUNT(*) FROM detected_faces WHERE person_id = ? AND identity_state = ?)",
			personID, models.IdentityAssigned,
		),
		"updated_at": time.Now().Unix(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to recompute face count for person ID %d: %w", personID, err)
	}
	return nil
}

// UpdateRecognitionStatus moves a person between training states
func (r *PersonRepository) UpdateRecognitionStatus(personID uint, status string) error {
	updates := map[string]interface{}{
		"recognition_status": status,
		"updated_at":         time.Now().Unix(),
	}
	result := r.DB.Model(&models.Person{}).Where("id = ?", personID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update recognition status for person ID %d: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CompleteTraining records the outcome of a finished training job
func (r *PersonRepository) CompleteTraining(personID uint, status string, trainedFaces int, trainedAt int64) error {
	updates := map[string]interface{}{
		"recognition_status":  status,
		"training_face_count": gorm.Expr("training_face_count + ?", trainedFaces),
		"last_trained_at":     trainedAt,
		"updated_at":          time.Now().Unix(),
	}
	result := r.DB.Model(&models.Person{}).Where("id = ?", personID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to record training outcome for person ID %d: %w", personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListWithSubjects returns every person that already has an engine subject
func (r *PersonRepository) ListWithSubjects() ([]models.Person, error) {
	var people []models.Person
	err := r.DB.Where("external_subject_id IS NOT NULL").Order("id ASC").Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list people with subjects: %w", err)
	}
	return people, nil
}

// ListAutoRecognize returns people opted into automatic training
func (r *PersonRepository) ListAutoRecognize() ([]models.Person, error) {
	var people []models.Person
	err := r.DB.Where("auto_recognize = ?", true).Order("id ASC").Find(&people).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-recognize people: %w", err)
	}
	return people, nil
}
