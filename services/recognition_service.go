package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/camden-git/faceidbackend/utils"
	"gorm.io/gorm"
)

// RecognitionThresholds are the two confidence tiers applied to engine
// matches. At or above AutoAssign a match is applied automatically; in
// [Confirmation, AutoAssign) it is surfaced for a human to confirm; below
// Confirmation it is ignored. Configured per deployment.
type RecognitionThresholds struct {
	AutoAssign   float64
	Confirmation float64
	// BoxMatch is the minimum IoU for mapping an engine result box back to
	// a local detected face
	BoxMatch float64
}

// RecognitionService runs batch recognition over images with unassigned
// faces, using one engine call per image and matching results back to local
// face rows by bounding-box overlap.
type RecognitionService struct {
	faceRepo   repository.FaceRepositoryInterface
	personRepo repository.PersonRepositoryInterface
	engine     recognition.Engine
	images     ImageSource
	thresholds RecognitionThresholds
}

// NewRecognitionService creates a new recognition service
func NewRecognitionService(
	faceRepo repository.FaceRepositoryInterface,
	personRepo repository.PersonRepositoryInterface,
	engine recognition.Engine,
	images ImageSource,
	thresholds RecognitionThresholds,
) *RecognitionService {
	return &RecognitionService{
		faceRepo:   faceRepo,
		personRepo: personRepo,
		engine:     engine,
		images:     images,
		thresholds: thresholds,
	}
}

// RecognizedFace is one engine match mapped back to a local face.
type RecognizedFace struct {
	FaceID     uint    `json:"face_id"`
	PersonID   uint    `json:"person_id"`
	PersonName string  `json:"person_name"`
	Similarity float64 `json:"similarity"`
}

// BatchRecognitionResult summarizes one batch-recognition pass. Per-image
// failures are skippable: they are counted and sampled, never fatal.
type BatchRecognitionResult struct {
	ImagesProcessed   int              `json:"images_processed"`
	FacesMatched      int              `json:"faces_matched"`
	AutoAssigned      []RecognizedFace `json:"auto_assigned"`
	NeedsConfirmation []RecognizedFace `json:"needs_confirmation"`
	ErrorCount        int              `json:"error_count"`
	Errors            []string         `json:"errors,omitempty"`
}

const errorSampleLimit = 10

// BatchRecognize runs the engine's recognize endpoint once per unique image
// and applies the two-tier confidence policy to every matched local face.
// Faces without a confident match are left untouched.
func (s *RecognitionService) BatchRecognize(ctx context.Context, imagePaths []string) (*BatchRecognitionResult, error) {
	if len(imagePaths) == 0 {
		return nil, NewValidationError("no image paths given")
	}

	seen := make(map[string]bool)
	result := &BatchRecognitionResult{
		AutoAssigned:      []RecognizedFace{},
		NeedsConfirmation: []RecognizedFace{},
	}

	for _, raw := range imagePaths {
		path := filepath.ToSlash(filepath.Clean(raw))
		if seen[path] {
			continue
		}
		seen[path] = true

		if err := s.recognizeImage(ctx, path, result); err != nil {
			result.ErrorCount++
			if len(result.Errors) < errorSampleLimit {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			}
			log.Printf("Warning: batch recognition failed for image %s: %v", path, err)
			continue
		}
		result.ImagesProcessed++
	}
	return result, nil
}

// recognizeImage handles a single image: one recognize call, then IoU
// matching of the returned boxes against the image's unassigned faces.
func (s *RecognitionService) recognizeImage(ctx context.Context, path string, result *BatchRecognitionResult) error {
	faces, err := s.faceRepo.ListByImagePath(path)
	if err != nil {
		return err
	}
	candidates := make([]models.DetectedFace, 0, len(faces))
	for _, f := range faces {
		if f.IsAssignable() {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	imageData, err := s.images.FullImage(path)
	if err != nil {
		return err
	}
	recognized, err := s.engine.Recognize(ctx, imageData, filepath.Base(path))
	if err != nil {
		return err
	}

	matchedLocal := make(map[uint]bool)
	for _, rec := range recognized {
		if len(rec.Candidates) == 0 {
			continue
		}
		best := rec.Candidates[0]
		for _, c := range rec.Candidates[1:] {
			if c.Similarity > best.Similarity {
				best = c
			}
		}
		if best.Similarity < s.thresholds.Confirmation {
			continue
		}

		face, ok := s.matchFace(rec.Box, candidates, matchedLocal)
		if !ok {
			continue
		}

		person, err := s.personRepo.GetBySubjectID(best.SubjectID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Warning: engine subject %s has no local person, skipping face %d", best.SubjectID, face.ID)
				continue
			}
			return err
		}

		matchedLocal[face.ID] = true
		result.FacesMatched++
		entry := RecognizedFace{
			FaceID:     face.ID,
			PersonID:   person.ID,
			PersonName: person.PrimaryName,
			Similarity: best.Similarity,
		}

		if best.Similarity >= s.thresholds.AutoAssign {
			sim := best.Similarity
			if err := s.faceRepo.Assign(face.ID, person.ID, &sim, models.MethodAuto, nil); err != nil {
				return err
			}
			if err := s.personRepo.RecomputeFaceCount(person.ID); err != nil {
				return err
			}
			result.AutoAssigned = append(result.AutoAssigned, entry)
		} else {
			result.NeedsConfirmation = append(result.NeedsConfirmation, entry)
		}
	}
	return nil
}

// matchFace finds the unmatched local face with the highest IoU against the
// engine's box, requiring at least the configured overlap.
func (s *RecognitionService) matchFace(box recognition.Box, candidates []models.DetectedFace, taken map[uint]bool) (*models.DetectedFace, bool) {
	engineBox := utils.Box{XMin: box.XMin, YMin: box.YMin, XMax: box.XMax, YMax: box.YMax}
	var best *models.DetectedFace
	bestIoU := 0.0
	for i := range candidates {
		f := &candidates[i]
		if taken[f.ID] {
			continue
		}
		iou := utils.IntersectionOverUnion(engineBox, utils.Box{XMin: f.XMin, YMin: f.YMin, XMax: f.XMax, YMax: f.YMax})
		if iou >= s.thresholds.BoxMatch && iou > bestIoU {
			best = f
			bestIoU = iou
		}
	}
	return best, best != nil
}

// ConfirmMatch applies a previously surfaced needs-confirmation match after
// a human approves it.
func (s *RecognitionService) ConfirmMatch(faceID, personID uint, similarity float64, confirmedBy *string) error {
	face, err := s.faceRepo.GetByID(faceID)
	if err != nil {
		return err
	}
	if !face.IsAssignable() {
		return NewValidationError("face %d is no longer assignable", faceID)
	}
	if _, err := s.personRepo.GetByID(personID); err != nil {
		return err
	}
	if err := s.faceRepo.Assign(faceID, personID, &similarity, models.MethodServiceConfirmed, confirmedBy); err != nil {
		return err
	}
	return s.personRepo.RecomputeFaceCount(personID)
}
