package repository

import (
	"github.com/camden-git/faceidbackend/models"
)

// FaceRepositoryInterface defines the methods for detected-face data operations
type FaceRepositoryInterface interface {
	Create(face *models.DetectedFace) error
	GetByID(id uint) (*models.DetectedFace, error)
	GetByIDs(ids []uint) ([]models.DetectedFace, error)
	ListByImagePath(imagePath string) ([]models.DetectedFace, error)

	// ListUnassigned returns faces still in the unidentified state,
	// ordered by id ascending for reproducible clustering input
	ListUnassigned() ([]models.DetectedFace, error)

	// Assign links a face to a person and resets its sync status so the
	// training queue will pick it up
	Assign(faceID, personID uint, confidence *float64, method string, assignedBy *string) error

	// ClearAssignment returns a face to the unidentified state; the remote
	// engine copy, if any, is left for the consistency manager to reconcile
	ClearAssignment(faceID uint) error

	// SetSentinel moves a face into a terminal invalid/unknown state
	SetSentinel(faceID uint, state string) error

	UpdateSyncStatus(faceID uint, status string, externalFaceID *string) error
	ResetSyncStatus(faceIDs []uint) error

	// ListForTraining returns a person's assigned faces not yet synced
	ListForTraining(personID uint) ([]models.DetectedFace, error)
	// ListSyncedByPerson returns a person's faces marked synced locally
	ListSyncedByPerson(personID uint) ([]models.DetectedFace, error)
	CountAssigned(personID uint) (int64, error)
	CountPendingSync(personID uint) (int64, error)
}

// PersonRepositoryInterface defines the methods for person data operations
type PersonRepositoryInterface interface {
	Create(person *models.Person) error
	GetByID(id uint) (*models.Person, error)
	ListAll() ([]models.Person, error)
	Update(person *models.Person) error
	Delete(id uint) error

	SetExternalSubjectID(personID uint, subjectID string) error
	ClearExternalSubjectID(personID uint) error
	GetBySubjectID(subjectID string) (*models.Person, error)
	// RecomputeFaceCount refreshes the cached face_count from assigned
	// DetectedFace rows; call after every assignment mutation
	RecomputeFaceCount(personID uint) error
	UpdateRecognitionStatus(personID uint, status string) error
	// CompleteTraining records the outcome of a training job on the person
	CompleteTraining(personID uint, status string, trainedFaces int, trainedAt int64) error

	// ListWithSubjects returns people that already have an engine subject
	ListWithSubjects() ([]models.Person, error)
	// ListAutoRecognize returns people flagged for automatic training
	ListAutoRecognize() ([]models.Person, error)
}

// SimilarFace pairs a candidate face with its stored similarity to a query
// face.
type SimilarFace struct {
	FaceID           uint    `json:"face_id"`
	Similarity       float64 `json:"similarity"`
	ComparisonMethod string  `json:"comparison_method"`
}

// SimilarityRepositoryInterface defines the methods for the face similarity store
type SimilarityRepositoryInterface interface {
	// Upsert stores a score for the unordered pair and method, replacing
	// any previous score for the same key
	Upsert(faceA, faceB uint, score float64, method string) error
	Get(faceA, faceB uint, method string) (*models.FaceSimilarity, error)

	// GetSimilarFaces returns unassigned faces scoring at or above
	// threshold against faceID, excluding faceID itself, best first
	GetSimilarFaces(faceID uint, threshold float64, limit int) ([]SimilarFace, error)

	// ListAmongFaces returns all stored edges of one method whose endpoints
	// are both in faceIDs
	ListAmongFaces(faceIDs []uint, method string) ([]models.FaceSimilarity, error)

	DeleteForFace(faceID uint) error
	DeleteByMethod(method string) error
}

// ClusterRepositoryInterface defines the methods for face cluster data operations
type ClusterRepositoryInterface interface {
	CreateWithMembers(cluster *models.FaceCluster, members []models.FaceClusterMember) error
	GetByID(id uint) (*models.FaceCluster, error)
	List(unreviewedOnly bool) ([]models.FaceCluster, error)
	Delete(id uint) error
	DeleteUnreviewedByAlgorithm(algorithm string) (int64, error)

	ListMembers(clusterID uint) ([]models.FaceClusterMember, error)
	// ListClusteredFaceIDs returns the ids of faces that already belong to
	// any cluster; clustering runs must not regroup them
	ListClusteredFaceIDs() ([]uint, error)
	// SetRepresentative makes faceID the cluster's sole representative via
	// a set-then-clear transaction
	SetRepresentative(clusterID, faceID uint) error
	// RecomputeFaceCount refreshes the cached face_count from member rows
	RecomputeFaceCount(clusterID uint) error

	MarkReviewed(clusterID uint, notes *string) error
	AssignPerson(clusterID, personID uint) error
}

// TrainingJobRepositoryInterface defines the methods for training job data operations
type TrainingJobRepositoryInterface interface {
	Create(job *models.TrainingJob) error
	GetByID(id uint) (*models.TrainingJob, error)
	List(limit int) ([]models.TrainingJob, error)
	ListPending(limit int) ([]models.TrainingJob, error)
	HasActiveJob(personID uint) (bool, error)

	MarkRunning(jobID uint, startedAt int64) error
	// Finish moves a running job to a terminal completed/failed state with
	// its upload tallies
	Finish(jobID uint, status string, facesAdded, facesFailed int, successRate float64, errMsg *string, completedAt int64) error
	Cancel(jobID uint) error
	// Requeue returns a failed job to pending with counters reset
	Requeue(jobID uint) error
}
