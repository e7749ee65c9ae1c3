package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/repository"
	"gorm.io/gorm"
)

// fakeState is a shared in-memory backing store for the repository fakes so
// that cross-repository effects (like face count recomputation) behave like
// the real database.
type fakeState struct {
	mu sync.Mutex

	faces    map[uint]*models.DetectedFace
	people   map[uint]*models.Person
	sims     map[string]*models.FaceSimilarity
	clusters map[uint]*models.FaceCluster
	members  map[uint][]models.FaceClusterMember
	jobs     map[uint]*models.TrainingJob

	nextFaceID    uint
	nextPersonID  uint
	nextClusterID uint
	nextJobID     uint
}

func newFakeState() *fakeState {
	return &fakeState{
		faces:    map[uint]*models.DetectedFace{},
		people:   map[uint]*models.Person{},
		sims:     map[string]*models.FaceSimilarity{},
		clusters: map[uint]*models.FaceCluster{},
		members:  map[uint][]models.FaceClusterMember{},
		jobs:     map[uint]*models.TrainingJob{},
	}
}

func (st *fakeState) addFace(imagePath string, xMin, yMin, xMax, yMax int) *models.DetectedFace {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nextFaceID++
	f := &models.DetectedFace{
		ID:                  st.nextFaceID,
		ImagePath:           imagePath,
		XMin:                xMin,
		YMin:                yMin,
		XMax:                xMax,
		YMax:                yMax,
		DetectionConfidence: 0.9,
		IdentityState:       models.IdentityUnidentified,
		SyncStatus:          models.SyncStatusNotSynced,
		CreatedAt:           time.Now().Unix(),
		UpdatedAt:           time.Now().Unix(),
	}
	st.faces[f.ID] = f
	return f
}

func (st *fakeState) addPerson(name string) *models.Person {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.nextPersonID++
	p := &models.Person{
		ID:                st.nextPersonID,
		PrimaryName:       name,
		RecognitionStatus: models.RecognitionUntrained,
		CreatedAt:         time.Now().Unix(),
		UpdatedAt:         time.Now().Unix(),
	}
	st.people[p.ID] = p
	return p
}

func simKey(a, b uint, method string) string {
	a, b = models.NormalizePair(a, b)
	return fmt.Sprintf("%d-%d-%s", a, b, method)
}

// fakeFaceRepo implements repository.FaceRepositoryInterface in memory.
type fakeFaceRepo struct{ st *fakeState }

func (r *fakeFaceRepo) Create(face *models.DetectedFace) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextFaceID++
	face.ID = r.st.nextFaceID
	if face.IdentityState == "" {
		face.IdentityState = models.IdentityUnidentified
	}
	if face.SyncStatus == "" {
		face.SyncStatus = models.SyncStatusNotSynced
	}
	copied := *face
	r.st.faces[face.ID] = &copied
	return nil
}

func (r *fakeFaceRepo) GetByID(id uint) (*models.DetectedFace, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	f, ok := r.st.faces[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *f
	return &copied, nil
}

func (r *fakeFaceRepo) GetByIDs(ids []uint) ([]models.DetectedFace, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.DetectedFace
	for _, id := range ids {
		if f, ok := r.st.faces[id]; ok {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFaceRepo) ListByImagePath(imagePath string) ([]models.DetectedFace, error) {
	return r.list(func(f *models.DetectedFace) bool { return f.ImagePath == imagePath })
}

func (r *fakeFaceRepo) ListUnassigned() ([]models.DetectedFace, error) {
	return r.list(func(f *models.DetectedFace) bool { return f.IdentityState == models.IdentityUnidentified })
}

func (r *fakeFaceRepo) list(keep func(*models.DetectedFace) bool) ([]models.DetectedFace, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.DetectedFace
	for _, f := range r.st.faces {
		if keep(f) {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeFaceRepo) Assign(faceID, personID uint, confidence *float64, method string, assignedBy *string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	f, ok := r.st.faces[faceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now().Unix()
	f.IdentityState = models.IdentityAssigned
	f.PersonID = &personID
	f.RecognitionMethod = &method
	f.MatchConfidence = confidence
	f.SyncStatus = models.SyncStatusNotSynced
	f.ExternalFaceID = nil
	f.AssignedAt = &now
	f.AssignedBy = assignedBy
	return nil
}

func (r *fakeFaceRepo) ClearAssignment(faceID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	f, ok := r.st.faces[faceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.IdentityState = models.IdentityUnidentified
	f.PersonID = nil
	f.RecognitionMethod = nil
	f.MatchConfidence = nil
	f.AssignedAt = nil
	f.AssignedBy = nil
	return nil
}

func (r *fakeFaceRepo) SetSentinel(faceID uint, state string) error {
	if state != models.IdentityInvalid && state != models.IdentityUnknown {
		return fmt.Errorf("invalid sentinel state %q", state)
	}
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	f, ok := r.st.faces[faceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.IdentityState = state
	f.PersonID = nil
	f.RecognitionMethod = nil
	f.MatchConfidence = nil
	f.AssignedAt = nil
	f.AssignedBy = nil
	return nil
}

func (r *fakeFaceRepo) UpdateSyncStatus(faceID uint, status string, externalFaceID *string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	f, ok := r.st.faces[faceID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.SyncStatus = status
	f.ExternalFaceID = externalFaceID
	return nil
}

func (r *fakeFaceRepo) ResetSyncStatus(faceIDs []uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, id := range faceIDs {
		if f, ok := r.st.faces[id]; ok {
			f.SyncStatus = models.SyncStatusNotSynced
			f.ExternalFaceID = nil
		}
	}
	return nil
}

func (r *fakeFaceRepo) ListForTraining(personID uint) ([]models.DetectedFace, error) {
	return r.list(func(f *models.DetectedFace) bool {
		return f.PersonID != nil && *f.PersonID == personID &&
			f.IdentityState == models.IdentityAssigned &&
			f.SyncStatus != models.SyncStatusSynced
	})
}

func (r *fakeFaceRepo) ListSyncedByPerson(personID uint) ([]models.DetectedFace, error) {
	return r.list(func(f *models.DetectedFace) bool {
		return f.PersonID != nil && *f.PersonID == personID && f.SyncStatus == models.SyncStatusSynced
	})
}

func (r *fakeFaceRepo) CountAssigned(personID uint) (int64, error) {
	faces, _ := r.list(func(f *models.DetectedFace) bool {
		return f.PersonID != nil && *f.PersonID == personID && f.IdentityState == models.IdentityAssigned
	})
	return int64(len(faces)), nil
}

func (r *fakeFaceRepo) CountPendingSync(personID uint) (int64, error) {
	faces, _ := r.ListForTraining(personID)
	return int64(len(faces)), nil
}

// fakePersonRepo implements repository.PersonRepositoryInterface in memory.
type fakePersonRepo struct{ st *fakeState }

func (r *fakePersonRepo) Create(person *models.Person) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextPersonID++
	person.ID = r.st.nextPersonID
	if person.RecognitionStatus == "" {
		person.RecognitionStatus = models.RecognitionUntrained
	}
	copied := *person
	r.st.people[person.ID] = &copied
	return nil
}

func (r *fakePersonRepo) GetByID(id uint) (*models.Person, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.people[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePersonRepo) ListAll() ([]models.Person, error) {
	return r.list(func(*models.Person) bool { return true })
}

func (r *fakePersonRepo) list(keep func(*models.Person) bool) ([]models.Person, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.Person
	for _, p := range r.st.people {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePersonRepo) Update(person *models.Person) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.people[person.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *person
	r.st.people[person.ID] = &copied
	return nil
}

func (r *fakePersonRepo) Delete(id uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.people[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.st.people, id)
	return nil
}

func (r *fakePersonRepo) SetExternalSubjectID(personID uint, subjectID string) error {
	return r.update(personID, func(p *models.Person) { p.ExternalSubjectID = &subjectID })
}

func (r *fakePersonRepo) ClearExternalSubjectID(personID uint) error {
	return r.update(personID, func(p *models.Person) { p.ExternalSubjectID = nil })
}

func (r *fakePersonRepo) update(personID uint, apply func(*models.Person)) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.people[personID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	apply(p)
	return nil
}

func (r *fakePersonRepo) GetBySubjectID(subjectID string) (*models.Person, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, p := range r.st.people {
		if p.ExternalSubjectID != nil && *p.ExternalSubjectID == subjectID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePersonRepo) RecomputeFaceCount(personID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	p, ok := r.st.people[personID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	count := 0
	for _, f := range r.st.faces {
		if f.PersonID != nil && *f.PersonID == personID && f.IdentityState == models.IdentityAssigned {
			count++
		}
	}
	p.FaceCount = count
	return nil
}

func (r *fakePersonRepo) UpdateRecognitionStatus(personID uint, status string) error {
	return r.update(personID, func(p *models.Person) { p.RecognitionStatus = status })
}

func (r *fakePersonRepo) CompleteTraining(personID uint, status string, trainedFaces int, trainedAt int64) error {
	return r.update(personID, func(p *models.Person) {
		p.RecognitionStatus = status
		p.TrainingFaceCount += trainedFaces
		p.LastTrainedAt = &trainedAt
	})
}

func (r *fakePersonRepo) ListWithSubjects() ([]models.Person, error) {
	return r.list(func(p *models.Person) bool {
		return p.ExternalSubjectID != nil && *p.ExternalSubjectID != ""
	})
}

func (r *fakePersonRepo) ListAutoRecognize() ([]models.Person, error) {
	return r.list(func(p *models.Person) bool { return p.AutoRecognize })
}

// fakeSimilarityRepo implements repository.SimilarityRepositoryInterface in
// memory.
type fakeSimilarityRepo struct{ st *fakeState }

func (r *fakeSimilarityRepo) Upsert(faceA, faceB uint, score float64, method string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	a, b := models.NormalizePair(faceA, faceB)
	r.st.sims[simKey(a, b, method)] = &models.FaceSimilarity{
		FaceAID:          a,
		FaceBID:          b,
		Similarity:       score,
		ComparisonMethod: method,
		CreatedAt:        time.Now().Unix(),
	}
	return nil
}

func (r *fakeSimilarityRepo) Get(faceA, faceB uint, method string) (*models.FaceSimilarity, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.sims[simKey(faceA, faceB, method)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSimilarityRepo) GetSimilarFaces(faceID uint, threshold float64, limit int) ([]repository.SimilarFace, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	best := map[uint]repository.SimilarFace{}
	for _, s := range r.st.sims {
		if s.FaceAID != faceID && s.FaceBID != faceID {
			continue
		}
		other := s.OtherFace(faceID)
		f, ok := r.st.faces[other]
		if !ok || !f.IsAssignable() {
			continue
		}
		if s.Similarity < threshold {
			continue
		}
		if cur, ok := best[other]; !ok || s.Similarity > cur.Similarity {
			best[other] = repository.SimilarFace{FaceID: other, Similarity: s.Similarity, ComparisonMethod: s.ComparisonMethod}
		}
	}
	out := make([]repository.SimilarFace, 0, len(best))
	for _, sf := range best {
		out = append(out, sf)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].FaceID < out[j].FaceID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeSimilarityRepo) ListAmongFaces(faceIDs []uint, method string) ([]models.FaceSimilarity, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	in := map[uint]bool{}
	for _, id := range faceIDs {
		in[id] = true
	}
	var out []models.FaceSimilarity
	for _, s := range r.st.sims {
		if s.ComparisonMethod == method && in[s.FaceAID] && in[s.FaceBID] {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSimilarityRepo) DeleteForFace(faceID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for k, s := range r.st.sims {
		if s.FaceAID == faceID || s.FaceBID == faceID {
			delete(r.st.sims, k)
		}
	}
	return nil
}

func (r *fakeSimilarityRepo) DeleteByMethod(method string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for k, s := range r.st.sims {
		if s.ComparisonMethod == method {
			delete(r.st.sims, k)
		}
	}
	return nil
}

// fakeClusterRepo implements repository.ClusterRepositoryInterface in memory.
type fakeClusterRepo struct{ st *fakeState }

func (r *fakeClusterRepo) CreateWithMembers(cluster *models.FaceCluster, members []models.FaceClusterMember) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextClusterID++
	cluster.ID = r.st.nextClusterID
	cluster.FaceCount = len(members)
	copied := *cluster
	r.st.clusters[cluster.ID] = &copied
	for i := range members {
		members[i].ClusterID = cluster.ID
	}
	r.st.members[cluster.ID] = append([]models.FaceClusterMember(nil), members...)
	return nil
}

func (r *fakeClusterRepo) GetByID(id uint) (*models.FaceCluster, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.clusters[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *c
	copied.Members = append([]models.FaceClusterMember(nil), r.st.members[id]...)
	return &copied, nil
}

func (r *fakeClusterRepo) List(unreviewedOnly bool) ([]models.FaceCluster, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.FaceCluster
	for _, c := range r.st.clusters {
		if unreviewedOnly && c.IsReviewed {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeClusterRepo) Delete(id uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.clusters[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.st.clusters, id)
	delete(r.st.members, id)
	return nil
}

func (r *fakeClusterRepo) DeleteUnreviewedByAlgorithm(algorithm string) (int64, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var removed int64
	for id, c := range r.st.clusters {
		if c.Algorithm == algorithm && !c.IsReviewed {
			delete(r.st.clusters, id)
			delete(r.st.members, id)
			removed++
		}
	}
	return removed, nil
}

func (r *fakeClusterRepo) ListMembers(clusterID uint) ([]models.FaceClusterMember, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	out := append([]models.FaceClusterMember(nil), r.st.members[clusterID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].FaceID < out[j].FaceID })
	return out, nil
}

func (r *fakeClusterRepo) ListClusteredFaceIDs() ([]uint, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	seen := make(map[uint]bool)
	var ids []uint
	for _, members := range r.st.members {
		for _, m := range members {
			if !seen[m.FaceID] {
				seen[m.FaceID] = true
				ids = append(ids, m.FaceID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeClusterRepo) SetRepresentative(clusterID, faceID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	members := r.st.members[clusterID]
	found := false
	for i := range members {
		members[i].IsRepresentative = members[i].FaceID == faceID
		if members[i].FaceID == faceID {
			found = true
		}
	}
	if !found {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *fakeClusterRepo) RecomputeFaceCount(clusterID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.clusters[clusterID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.FaceCount = len(r.st.members[clusterID])
	return nil
}

func (r *fakeClusterRepo) MarkReviewed(clusterID uint, notes *string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.clusters[clusterID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.IsReviewed = true
	if notes != nil {
		c.Notes = *notes
	}
	return nil
}

func (r *fakeClusterRepo) AssignPerson(clusterID, personID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	c, ok := r.st.clusters[clusterID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.IsReviewed = true
	c.AssignedPersonID = &personID
	return nil
}

// fakeJobRepo implements repository.TrainingJobRepositoryInterface in memory.
type fakeJobRepo struct{ st *fakeState }

func (r *fakeJobRepo) Create(job *models.TrainingJob) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextJobID++
	job.ID = r.st.nextJobID
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	job.CreatedAt = time.Now().Unix()
	copied := *job
	r.st.jobs[job.ID] = &copied
	return nil
}

func (r *fakeJobRepo) GetByID(id uint) (*models.TrainingJob, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	j, ok := r.st.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *j
	return &copied, nil
}

func (r *fakeJobRepo) List(limit int) ([]models.TrainingJob, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.TrainingJob
	for _, j := range r.st.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeJobRepo) ListPending(limit int) ([]models.TrainingJob, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	var out []models.TrainingJob
	for _, j := range r.st.jobs {
		if j.Status == models.JobStatusPending {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeJobRepo) HasActiveJob(personID uint) (bool, error) {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	for _, j := range r.st.jobs {
		if j.PersonID == personID && (j.Status == models.JobStatusPending || j.Status == models.JobStatusRunning) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeJobRepo) MarkRunning(jobID uint, startedAt int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	j, ok := r.st.jobs[jobID]
	if !ok || j.Status != models.JobStatusPending {
		return gorm.ErrRecordNotFound
	}
	j.Status = models.JobStatusRunning
	j.StartedAt = &startedAt
	return nil
}

func (r *fakeJobRepo) Finish(jobID uint, status string, facesAdded, facesFailed int, successRate float64, errMsg *string, completedAt int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	j, ok := r.st.jobs[jobID]
	if !ok || j.Status != models.JobStatusRunning {
		return gorm.ErrRecordNotFound
	}
	j.Status = status
	j.FacesAdded = facesAdded
	j.FacesFailed = facesFailed
	j.SuccessRate = successRate
	j.ErrorMessage = errMsg
	j.CompletedAt = &completedAt
	return nil
}

func (r *fakeJobRepo) Cancel(jobID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	j, ok := r.st.jobs[jobID]
	if !ok || (j.Status != models.JobStatusPending && j.Status != models.JobStatusRunning) {
		return gorm.ErrRecordNotFound
	}
	j.Status = models.JobStatusCancelled
	return nil
}

func (r *fakeJobRepo) Requeue(jobID uint) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	j, ok := r.st.jobs[jobID]
	if !ok || j.Status != models.JobStatusFailed {
		return gorm.ErrRecordNotFound
	}
	j.Status = models.JobStatusPending
	j.FacesAdded = 0
	j.FacesFailed = 0
	j.SuccessRate = 0
	j.ErrorMessage = nil
	j.StartedAt = nil
	j.CompletedAt = nil
	return nil
}

// fakeEngine implements recognition.Engine with programmable behavior.
type fakeEngine struct {
	mu sync.Mutex

	subjects map[string]bool
	// subject id -> stored face handles
	storedFaces map[string][]string
	nextHandle  int

	pingErr error
	// filenames whose AddFace upload should fail
	failUploads map[string]bool
	// compareFn scores a crop pair; nil means score 0
	compareFn func(source, target []byte) (float64, error)
	// recognizeFn answers Recognize per image; nil means no faces
	recognizeFn func(filename string) ([]recognition.RecognitionResult, error)

	compareCalls int
	deletedFaces []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		subjects:    map[string]bool{},
		storedFaces: map[string][]string{},
		failUploads: map[string]bool{},
	}
}

func (e *fakeEngine) Ping(ctx context.Context) error { return e.pingErr }

func (e *fakeEngine) CreateSubject(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subjects[name] = true
	return name, nil
}

func (e *fakeEngine) DeleteSubject(ctx context.Context, subjectID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subjects, subjectID)
	delete(e.storedFaces, subjectID)
	return nil
}

func (e *fakeEngine) AddFace(ctx context.Context, subjectID string, image []byte, filename string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failUploads[filename] {
		return "", fmt.Errorf("upload rejected for %s", filename)
	}
	e.nextHandle++
	handle := fmt.Sprintf("handle-%d", e.nextHandle)
	e.storedFaces[subjectID] = append(e.storedFaces[subjectID], handle)
	return handle, nil
}

func (e *fakeEngine) DeleteFace(ctx context.Context, faceHandle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletedFaces = append(e.deletedFaces, faceHandle)
	for subject, handles := range e.storedFaces {
		kept := handles[:0]
		for _, h := range handles {
			if h != faceHandle {
				kept = append(kept, h)
			}
		}
		e.storedFaces[subject] = kept
	}
	return nil
}

func (e *fakeEngine) Recognize(ctx context.Context, image []byte, filename string) ([]recognition.RecognitionResult, error) {
	if e.recognizeFn == nil {
		return nil, nil
	}
	return e.recognizeFn(filename)
}

func (e *fakeEngine) CompareFaces(ctx context.Context, source, target []byte) (float64, error) {
	e.mu.Lock()
	e.compareCalls++
	e.mu.Unlock()
	if e.compareFn == nil {
		return 0, nil
	}
	return e.compareFn(source, target)
}

func (e *fakeEngine) ListSubjects(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.subjects))
	for s := range e.subjects {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (e *fakeEngine) ListFaces(ctx context.Context, subjectID string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.storedFaces[subjectID]...), nil
}

// fakeImageSource returns deterministic crop bytes derived from the face
// coordinates so the compare function can recover which face it was given.
type fakeImageSource struct {
	// errPaths makes FaceCrop and FullImage fail for those image paths
	errPaths map[string]bool
}

func (s *fakeImageSource) FaceCrop(relativePath string, xMin, yMin, xMax, yMax int) ([]byte, error) {
	if s.errPaths[relativePath] {
		return nil, fmt.Errorf("cannot load %s", relativePath)
	}
	return []byte(fmt.Sprintf("%s|%d,%d,%d,%d", relativePath, xMin, yMin, xMax, yMax)), nil
}

func (s *fakeImageSource) FullImage(relativePath string) ([]byte, error) {
	if s.errPaths[relativePath] {
		return nil, fmt.Errorf("cannot load %s", relativePath)
	}
	return []byte("image:" + relativePath), nil
}
