package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/repository"
	"gorm.io/gorm"
)

// Review actions accepted by ReviewCluster.
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
	ReviewSplit   = "split"
)

// AssignmentService implements the assignment and review workflow: linking
// faces and clusters to people, sentinel-flagging bad detections, and
// keeping every touched person's cached face count honest.
type AssignmentService struct {
	faceRepo    repository.FaceRepositoryInterface
	personRepo  repository.PersonRepositoryInterface
	clusterRepo repository.ClusterRepositoryInterface
	simRepo     repository.SimilarityRepositoryInterface
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(
	faceRepo repository.FaceRepositoryInterface,
	personRepo repository.PersonRepositoryInterface,
	clusterRepo repository.ClusterRepositoryInterface,
	simRepo repository.SimilarityRepositoryInterface,
) *AssignmentService {
	return &AssignmentService{
		faceRepo:    faceRepo,
		personRepo:  personRepo,
		clusterRepo: clusterRepo,
		simRepo:     simRepo,
	}
}

func validMethod(method string) bool {
	switch method {
	case models.MethodManual, models.MethodAuto, models.MethodClustering,
		models.MethodServiceConfirmed, models.MethodManualOverride:
		return true
	}
	return false
}

// AssignFace links one face to a person. The face becomes due for upload on
// the next training pass; the person's face count is recomputed before
// returning. Reassigning an already-assigned face also refreshes the
// previous owner's count.
func (s *AssignmentService) AssignFace(faceID, personID uint, confidence *float64, method string, assignedBy *string) error {
	if !validMethod(method) {
		return NewValidationError("unknown recognition method %q", method)
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return NewValidationError("confidence must be in [0,1], got %g", *confidence)
	}

	face, err := s.faceRepo.GetByID(faceID)
	if err != nil {
		return err
	}
	if face.IdentityState == models.IdentityInvalid || face.IdentityState == models.IdentityUnknown {
		return NewValidationError("face %d is sentinel-flagged %s and cannot be assigned", faceID, face.IdentityState)
	}
	if face.IdentityState == models.IdentityAssigned && method != models.MethodManualOverride {
		return NewValidationError("face %d is already assigned; use method %q to override", faceID, models.MethodManualOverride)
	}
	if _, err := s.personRepo.GetByID(personID); err != nil {
		return err
	}

	previousOwner := face.PersonID

	if err := s.faceRepo.Assign(faceID, personID, confidence, method, assignedBy); err != nil {
		return err
	}
	if err := s.personRepo.RecomputeFaceCount(personID); err != nil {
		return err
	}
	if previousOwner != nil && *previousOwner != personID {
		if err := s.personRepo.RecomputeFaceCount(*previousOwner); err != nil {
			return err
		}
	}
	return nil
}

// AssignCluster assigns every assignable member of a cluster to a person and
// marks the cluster reviewed. Sentinel-flagged members are skipped. Returns
// the number of faces assigned.
func (s *AssignmentService) AssignCluster(clusterID, personID uint, assignedBy *string) (int, error) {
	cluster, err := s.clusterRepo.GetByID(clusterID)
	if err != nil {
		return 0, err
	}
	if _, err := s.personRepo.GetByID(personID); err != nil {
		return 0, err
	}

	assigned := 0
	for _, member := range cluster.Members {
		face, err := s.faceRepo.GetByID(member.FaceID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("Warning: cluster %d member face %d no longer exists, skipping", clusterID, member.FaceID)
				continue
			}
			return assigned, err
		}
		if !face.IsAssignable() {
			continue
		}
		sim := member.SimilarityToCluster
		if err := s.faceRepo.Assign(member.FaceID, personID, &sim, models.MethodClustering, assignedBy); err != nil {
			return assigned, err
		}
		assigned++
	}

	if err := s.clusterRepo.AssignPerson(clusterID, personID); err != nil {
		return assigned, err
	}
	if err := s.personRepo.RecomputeFaceCount(personID); err != nil {
		return assigned, err
	}
	return assigned, nil
}

// ReviewCluster applies a review decision. Approve marks the cluster
// reviewed without assigning anyone; its faces remain individually
// assignable. Reject marks it reviewed and sentinel-flags the listed
// members as invalid. Split dissolves the cluster entirely, returning the
// member faces to the loose unidentified pool.
func (s *AssignmentService) ReviewCluster(clusterID uint, action string, notes *string, invalidFaceIDs []uint) error {
	cluster, err := s.clusterRepo.GetByID(clusterID)
	if err != nil {
		return err
	}

	switch action {
	case ReviewApprove:
		return s.clusterRepo.MarkReviewed(clusterID, notes)

	case ReviewReject:
		memberSet := make(map[uint]bool, len(cluster.Members))
		for _, m := range cluster.Members {
			memberSet[m.FaceID] = true
		}
		for _, faceID := range invalidFaceIDs {
			if !memberSet[faceID] {
				return NewValidationError("face %d is not a member of cluster %d", faceID, clusterID)
			}
		}
		for _, faceID := range invalidFaceIDs {
			if err := s.MarkInvalid(faceID); err != nil {
				return fmt.Errorf("failed to flag cluster %d member %d: %w", clusterID, faceID, err)
			}
		}
		return s.clusterRepo.MarkReviewed(clusterID, notes)

	case ReviewSplit:
		return s.clusterRepo.Delete(clusterID)

	default:
		return NewValidationError("unknown review action %q", action)
	}
}

// MarkInvalid flags a face as not actually being a face. The state is
// terminal; the row is kept but leaves every candidate pool, and its
// similarity edges are dropped.
func (s *AssignmentService) MarkInvalid(faceID uint) error {
	return s.setSentinel(faceID, models.IdentityInvalid)
}

// MarkUnknown flags a face as a background person who will never be
// identified. Terminal, like MarkInvalid.
func (s *AssignmentService) MarkUnknown(faceID uint) error {
	return s.setSentinel(faceID, models.IdentityUnknown)
}

func (s *AssignmentService) setSentinel(faceID uint, state string) error {
	face, err := s.faceRepo.GetByID(faceID)
	if err != nil {
		return err
	}
	previousOwner := face.PersonID

	if err := s.faceRepo.SetSentinel(faceID, state); err != nil {
		return err
	}
	if err := s.simRepo.DeleteForFace(faceID); err != nil {
		return err
	}
	if previousOwner != nil {
		if err := s.personRepo.RecomputeFaceCount(*previousOwner); err != nil {
			return err
		}
	}
	return nil
}

// RemoveAssignment returns an assigned face to the unidentified pool. Any
// copy already uploaded to the engine is left for the consistency manager
// to reconcile on its next pass.
func (s *AssignmentService) RemoveAssignment(faceID uint) error {
	face, err := s.faceRepo.GetByID(faceID)
	if err != nil {
		return err
	}
	if face.IdentityState != models.IdentityAssigned || face.PersonID == nil {
		return NewValidationError("face %d is not assigned", faceID)
	}
	previousOwner := *face.PersonID

	if err := s.faceRepo.ClearAssignment(faceID); err != nil {
		return err
	}
	return s.personRepo.RecomputeFaceCount(previousOwner)
}
