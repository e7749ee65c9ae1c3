package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

// fakePersonRepo implements repository.PersonRepositoryInterface in memory.
type fakePersonRepo struct {
	people map[uint]*models.Person
	nextID uint
}

func newFakePersonRepo() *fakePersonRepo {
	return &fakePersonRepo{people: make(map[uint]*models.Person)}
}

func (r *fakePersonRepo) Create(person *models.Person) error {
	r.nextID++
	person.ID = r.nextID
	copied := *person
	r.people[person.ID] = &copied
	return nil
}

func (r *fakePersonRepo) GetByID(id uint) (*models.Person, error) {
	p, ok := r.people[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *fakePersonRepo) ListAll() ([]models.Person, error) {
	out := make([]models.Person, 0, len(r.people))
	for _, p := range r.people {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePersonRepo) Update(person *models.Person) error {
	if _, ok := r.people[person.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *person
	r.people[person.ID] = &copied
	return nil
}

func (r *fakePersonRepo) Delete(id uint) error {
	if _, ok := r.people[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.people, id)
	return nil
}

func (r *fakePersonRepo) SetExternalSubjectID(personID uint, subjectID string) error {
	p, ok := r.people[personID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.ExternalSubjectID = &subjectID
	return nil
}

func (r *fakePersonRepo) ClearExternalSubjectID(personID uint) error {
	p, ok := r.people[personID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.ExternalSubjectID = nil
	return nil
}

func (r *fakePersonRepo) GetBySubjectID(subjectID string) (*models.Person, error) {
	for _, p := range r.people {
		if p.ExternalSubjectID != nil && *p.ExternalSubjectID == subjectID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakePersonRepo) RecomputeFaceCount(personID uint) error { return nil }

func (r *fakePersonRepo) UpdateRecognitionStatus(personID uint, status string) error {
	p, ok := r.people[personID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	p.RecognitionStatus = status
	return nil
}

func (r *fakePersonRepo) CompleteTraining(personID uint, status string, trainedFaces int, trainedAt int64) error {
	return nil
}

func (r *fakePersonRepo) ListWithSubjects() ([]models.Person, error) { return nil, nil }

func (r *fakePersonRepo) ListAutoRecognize() ([]models.Person, error) { return nil, nil }

// fakeEngine records subject deletions; everything else is inert.
type fakeEngine struct {
	deletedSubjects []string
}

func (e *fakeEngine) Ping(ctx context.Context) error { return nil }

func (e *fakeEngine) CreateSubject(ctx context.Context, name string) (string, error) {
	return name, nil
}

func (e *fakeEngine) DeleteSubject(ctx context.Context, subjectID string) error {
	e.deletedSubjects = append(e.deletedSubjects, subjectID)
	return nil
}

func (e *fakeEngine) AddFace(ctx context.Context, subjectID string, image []byte, filename string) (string, error) {
	return "", nil
}

func (e *fakeEngine) DeleteFace(ctx context.Context, faceHandle string) error { return nil }

func (e *fakeEngine) Recognize(ctx context.Context, image []byte, filename string) ([]recognition.RecognitionResult, error) {
	return nil, nil
}

func (e *fakeEngine) CompareFaces(ctx context.Context, source, target []byte) (float64, error) {
	return 0, nil
}

func (e *fakeEngine) ListSubjects(ctx context.Context) ([]string, error) { return nil, nil }

func (e *fakeEngine) ListFaces(ctx context.Context, subjectID string) ([]string, error) {
	return nil, nil
}

func personRouter(repo *fakePersonRepo, engine *fakeEngine) chi.Router {
	ph := &PersonHandler{PersonRepo: repo, Engine: engine}
	r := chi.NewRouter()
	r.Post("/people", ph.CreatePerson)
	r.Get("/people", ph.ListPersons)
	r.Get("/people/{person_id}", ph.GetPerson)
	r.Put("/people/{person_id}", ph.UpdatePerson)
	r.Delete("/people/{person_id}", ph.DeletePerson)
	return r
}

func TestCreatePersonStoresNotes(t *testing.T) {
	repo := newFakePersonRepo()
	router := personRouter(repo, &fakeEngine{})

	body := bytes.NewBufferString(`{"primary_name": "Ada Lovelace", "notes": "seen at the launch party"}`)
	req := httptest.NewRequest(http.MethodPost, "/people", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var got models.Person
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.PrimaryName != "Ada Lovelace" {
		t.Errorf("primary name = %q, want Ada Lovelace", got.PrimaryName)
	}
	if got.Notes != "seen at the launch party" {
		t.Errorf("notes = %q, want the submitted notes", got.Notes)
	}
	stored, err := repo.GetByID(got.ID)
	if err != nil {
		t.Fatalf("person was not persisted: %v", err)
	}
	if stored.Notes != "seen at the launch party" {
		t.Errorf("stored notes = %q, want the submitted notes", stored.Notes)
	}
}

func TestCreatePersonRequiresPrimaryName(t *testing.T) {
	router := personRouter(newFakePersonRepo(), &fakeEngine{})

	req := httptest.NewRequest(http.MethodPost, "/people", bytes.NewBufferString(`{"notes": "no name"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdatePersonPartialFields(t *testing.T) {
	repo := newFakePersonRepo()
	router := personRouter(repo, &fakeEngine{})
	if err := repo.Create(&models.Person{PrimaryName: "Ada", Notes: "original"}); err != nil {
		t.Fatalf("seeding person: %v", err)
	}

	t.Run("notes only", func(t *testing.T) {
		body := bytes.NewBufferString(`{"notes": "updated notes"}`)
		req := httptest.NewRequest(http.MethodPut, "/people/1", body)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		stored, _ := repo.GetByID(1)
		if stored.Notes != "updated notes" {
			t.Errorf("notes = %q, want updated notes", stored.Notes)
		}
		if stored.PrimaryName != "Ada" {
			t.Errorf("primary name = %q, an omitted field must be untouched", stored.PrimaryName)
		}
	})

	t.Run("name only leaves notes alone", func(t *testing.T) {
		body := bytes.NewBufferString(`{"primary_name": "Ada Lovelace"}`)
		req := httptest.NewRequest(http.MethodPut, "/people/1", body)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		stored, _ := repo.GetByID(1)
		if stored.PrimaryName != "Ada Lovelace" {
			t.Errorf("primary name = %q, want Ada Lovelace", stored.PrimaryName)
		}
		if stored.Notes != "updated notes" {
			t.Errorf("notes = %q, an omitted field must be untouched", stored.Notes)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		body := bytes.NewBufferString(`{"primary_name": ""}`)
		req := httptest.NewRequest(http.MethodPut, "/people/1", body)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestDeletePersonRemovesEngineSubject(t *testing.T) {
	repo := newFakePersonRepo()
	engine := &fakeEngine{}
	router := personRouter(repo, engine)

	subject := "subj-1"
	if err := repo.Create(&models.Person{PrimaryName: "Ada", ExternalSubjectID: &subject}); err != nil {
		t.Fatalf("seeding person: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/people/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, err := repo.GetByID(1); err == nil {
		t.Error("person still present after delete")
	}
	if len(engine.deletedSubjects) != 1 || engine.deletedSubjects[0] != "subj-1" {
		t.Errorf("deleted subjects = %v, want [subj-1]", engine.deletedSubjects)
	}
}

func TestGetPersonNotFound(t *testing.T) {
	router := personRouter(newFakePersonRepo(), &fakeEngine{})

	req := httptest.NewRequest(http.MethodGet, "/people/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
