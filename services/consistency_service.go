package services

import (
	"context"
	"fmt"
	"log"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/repository"
)

// ConsistencyService reconciles local sync bookkeeping against the engine's
// actual subject/face inventory. It is the only component that reads the
// engine's full inventory; training and assignment only ever add or remove
// individual faces. Disagreements are reported, never raised as errors, and
// repaired only when explicitly authorized.
type ConsistencyService struct {
	faceRepo   repository.FaceRepositoryInterface
	personRepo repository.PersonRepositoryInterface
	engine     recognition.Engine
}

// NewConsistencyService creates a new consistency service
func NewConsistencyService(
	faceRepo repository.FaceRepositoryInterface,
	personRepo repository.PersonRepositoryInterface,
	engine recognition.Engine,
) *ConsistencyService {
	return &ConsistencyService{
		faceRepo:   faceRepo,
		personRepo: personRepo,
		engine:     engine,
	}
}

// QuickCheckReport compares local synced-face bookkeeping against the
// training counters for one person, without touching the engine. Cheap
// enough for the hot assignment path.
type QuickCheckReport struct {
	PersonID          uint `json:"person_id"`
	SyncedFaces       int  `json:"synced_faces"`
	TrainingFaceCount int  `json:"training_face_count"`
	PendingSync       int  `json:"pending_sync"`
	Consistent        bool `json:"consistent"`
}

// QuickCheck runs the lightweight post-assignment consistency probe.
func (s *ConsistencyService) QuickCheck(personID uint) (*QuickCheckReport, error) {
	person, err := s.personRepo.GetByID(personID)
	if err != nil {
		return nil, err
	}
	synced, err := s.faceRepo.ListSyncedByPerson(personID)
	if err != nil {
		return nil, err
	}
	pending, err := s.faceRepo.CountPendingSync(personID)
	if err != nil {
		return nil, err
	}

	return &QuickCheckReport{
		PersonID:          personID,
		SyncedFaces:       len(synced),
		TrainingFaceCount: person.TrainingFaceCount,
		PendingSync:       int(pending),
		Consistent:        len(synced) == person.TrainingFaceCount,
	}, nil
}

// FullCheckOptions selects what a full check examines and whether it may
// repair what it finds.
type FullCheckOptions struct {
	CheckFaces   bool `json:"check_faces"`
	CheckPersons bool `json:"check_persons"`
	AutoRepair   bool `json:"auto_repair"`
}

// PersonCheckResult is the per-person slice of a full check.
type PersonCheckResult struct {
	PersonID            uint   `json:"person_id"`
	SubjectID           string `json:"subject_id"`
	SubjectMissing      bool   `json:"subject_missing"`
	LocalSynced         int    `json:"local_synced"`
	RemoteFaces         int    `json:"remote_faces"`
	OrphanedAssignments int    `json:"orphaned_assignments"`
	StaleRemoteFaces    int    `json:"stale_remote_faces"`
	Repaired            int    `json:"repaired"`
}

// FullCheckReport aggregates a full consistency check.
type FullCheckReport struct {
	PersonsChecked      int                 `json:"persons_checked"`
	FacesChecked        int                 `json:"faces_checked"`
	MissingSubjects     int                 `json:"missing_subjects"`
	OrphanedAssignments int                 `json:"orphaned_assignments"`
	StaleRemoteFaces    int                 `json:"stale_remote_faces"`
	RepairedFaces       int                 `json:"repaired_faces"`
	Results             []PersonCheckResult `json:"results"`
	ErrorCount          int                 `json:"error_count"`
	Errors              []string            `json:"errors,omitempty"`
}

// FullCheck fetches the engine's true inventory and compares it against
// local bookkeeping. A face marked synced locally but absent remotely is an
// orphaned assignment; with AutoRepair it is reset to not-synced so the
// training queue re-uploads it. Engine failures for one person skip that
// person and continue the sweep.
func (s *ConsistencyService) FullCheck(ctx context.Context, opts FullCheckOptions) (*FullCheckReport, error) {
	if !opts.CheckFaces && !opts.CheckPersons {
		return nil, NewValidationError("nothing to check: enable check_faces and/or check_persons")
	}

	people, err := s.personRepo.ListWithSubjects()
	if err != nil {
		return nil, err
	}

	report := &FullCheckReport{Results: []PersonCheckResult{}}

	var remoteSubjects map[string]bool
	if opts.CheckPersons {
		subjects, err := s.engine.ListSubjects(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch engine subject inventory: %w", err)
		}
		remoteSubjects = make(map[string]bool, len(subjects))
		for _, id := range subjects {
			remoteSubjects[id] = true
		}
	}

	for _, person := range people {
		subjectID := *person.ExternalSubjectID
		entry := PersonCheckResult{PersonID: person.ID, SubjectID: subjectID}
		report.PersonsChecked++

		if opts.CheckPersons && !remoteSubjects[subjectID] {
			entry.SubjectMissing = true
			report.MissingSubjects++
			if opts.AutoRepair {
				repaired, err := s.repairMissingSubject(person)
				if err != nil {
					s.recordError(report, fmt.Errorf("person %d: %w", person.ID, err))
				} else {
					entry.Repaired = repaired
					report.RepairedFaces += repaired
				}
			}
			report.Results = append(report.Results, entry)
			continue
		}

		if opts.CheckFaces {
			if err := s.checkPersonFaces(ctx, person, subjectID, opts.AutoRepair, &entry, report); err != nil {
				s.recordError(report, fmt.Errorf("person %d: %w", person.ID, err))
			}
		}
		report.Results = append(report.Results, entry)
	}
	return report, nil
}

// checkPersonFaces diffs one person's locally-synced faces against the
// engine's stored faces for their subject.
func (s *ConsistencyService) checkPersonFaces(ctx context.Context, person models.Person, subjectID string, autoRepair bool, entry *PersonCheckResult, report *FullCheckReport) error {
	remoteHandles, err := s.engine.ListFaces(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("failed to list engine faces: %w", err)
	}
	remote := make(map[string]bool, len(remoteHandles))
	for _, h := range remoteHandles {
		remote[h] = true
	}
	entry.RemoteFaces = len(remoteHandles)

	localSynced, err := s.faceRepo.ListSyncedByPerson(person.ID)
	if err != nil {
		return err
	}
	entry.LocalSynced = len(localSynced)
	report.FacesChecked += len(localSynced)

	var orphaned []uint
	claimed := make(map[string]bool, len(localSynced))
	for _, face := range localSynced {
		if face.ExternalFaceID == nil || !remote[*face.ExternalFaceID] {
			orphaned = append(orphaned, face.ID)
			continue
		}
		claimed[*face.ExternalFaceID] = true
	}
	entry.OrphanedAssignments = len(orphaned)
	report.OrphanedAssignments += len(orphaned)

	// remote faces no local synced row claims, typically left behind by
	// removed assignments
	var stale []string
	for _, h := range remoteHandles {
		if !claimed[h] {
			stale = append(stale, h)
		}
	}
	entry.StaleRemoteFaces = len(stale)
	report.StaleRemoteFaces += len(stale)

	if !autoRepair {
		return nil
	}

	if len(orphaned) > 0 {
		if err := s.faceRepo.ResetSyncStatus(orphaned); err != nil {
			return err
		}
		entry.Repaired += len(orphaned)
		report.RepairedFaces += len(orphaned)
		log.Printf("Consistency repair: reset %d orphaned assignment(s) for person %d", len(orphaned), person.ID)
	}
	for _, h := range stale {
		if err := s.engine.DeleteFace(ctx, h); err != nil {
			s.recordError(report, fmt.Errorf("failed to delete stale engine face %s: %w", h, err))
			continue
		}
		entry.Repaired++
		report.RepairedFaces++
	}
	return nil
}

// repairMissingSubject handles a subject that vanished from the engine:
// every locally-synced face is reset for re-upload and the stale handle is
// forgotten so the next training pass mints a fresh subject.
func (s *ConsistencyService) repairMissingSubject(person models.Person) (int, error) {
	synced, err := s.faceRepo.ListSyncedByPerson(person.ID)
	if err != nil {
		return 0, err
	}
	ids := make([]uint, 0, len(synced))
	for _, f := range synced {
		ids = append(ids, f.ID)
	}
	if err := s.faceRepo.ResetSyncStatus(ids); err != nil {
		return 0, err
	}
	if err := s.personRepo.ClearExternalSubjectID(person.ID); err != nil {
		return 0, err
	}
	if err := s.personRepo.UpdateRecognitionStatus(person.ID, models.RecognitionUntrained); err != nil {
		return 0, err
	}
	log.Printf("Consistency repair: subject %s for person %d missing remotely; reset %d face(s) for re-upload",
		*person.ExternalSubjectID, person.ID, len(ids))
	return len(ids), nil
}

func (s *ConsistencyService) recordError(report *FullCheckReport, err error) {
	report.ErrorCount++
	if len(report.Errors) < errorSampleLimit {
		report.Errors = append(report.Errors, err.Error())
	}
	log.Printf("Warning: consistency check: %v", err)
}
