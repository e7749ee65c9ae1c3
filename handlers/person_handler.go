package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/go-chi/chi/v5"
)

// PersonHandler serves person CRUD. Deleting a person also removes their
// recognition engine subject so the engine cannot keep matching against a
// person that no longer exists.
type PersonHandler struct {
	PersonRepo repository.PersonRepositoryInterface
	Engine     recognition.Engine
}

type personPayload struct {
	PrimaryName   *string `json:"primary_name,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	AutoRecognize *bool   `json:"auto_recognize,omitempty"`
}

// ListPersons returns all persons.
func (ph *PersonHandler) ListPersons(w http.ResponseWriter, r *http.Request) {
	people, err := ph.PersonRepo.ListAll()
	if err != nil {
		writeServiceError(w, "person list", err)
		return
	}
	if people == nil {
		people = []models.Person{}
	}
	writeJSON(w, http.StatusOK, people)
}

// CreatePerson creates a person. The engine subject is minted lazily on
// first training, not here.
func (ph *PersonHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req personPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.PrimaryName == nil || *req.PrimaryName == "" {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "primary_name is required")
		return
	}

	person := &models.Person{PrimaryName: *req.PrimaryName}
	if req.Notes != nil {
		person.Notes = *req.Notes
	}
	if req.AutoRecognize != nil {
		person.AutoRecognize = *req.AutoRecognize
	}
	if err := ph.PersonRepo.Create(person); err != nil {
		writeServiceError(w, "person creation", err)
		return
	}
	writeJSON(w, http.StatusCreated, person)
}

// GetPerson returns one person.
func (ph *PersonHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	personID, err := parseIDParam(chi.URLParam(r, "person_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid person ID format")
		return
	}
	person, err := ph.PersonRepo.GetByID(personID)
	if err != nil {
		writeServiceError(w, "person", err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// UpdatePerson applies a partial update to a person.
func (ph *PersonHandler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	personID, err := parseIDParam(chi.URLParam(r, "person_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid person ID format")
		return
	}

	var req personPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	person, err := ph.PersonRepo.GetByID(personID)
	if err != nil {
		writeServiceError(w, "person", err)
		return
	}
	if req.PrimaryName != nil {
		if *req.PrimaryName == "" {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "primary_name cannot be empty")
			return
		}
		person.PrimaryName = *req.PrimaryName
	}
	if req.Notes != nil {
		person.Notes = *req.Notes
	}
	if req.AutoRecognize != nil {
		person.AutoRecognize = *req.AutoRecognize
	}
	if err := ph.PersonRepo.Update(person); err != nil {
		writeServiceError(w, "person update", err)
		return
	}
	writeJSON(w, http.StatusOK, person)
}

// DeletePerson removes a person and, when one exists, their engine subject.
// An engine failure is logged but does not abort the delete; the next full
// consistency check sweeps up whatever the engine kept.
func (ph *PersonHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	personID, err := parseIDParam(chi.URLParam(r, "person_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid person ID format")
		return
	}
	person, err := ph.PersonRepo.GetByID(personID)
	if err != nil {
		writeServiceError(w, "person", err)
		return
	}

	if person.ExternalSubjectID != nil && *person.ExternalSubjectID != "" {
		if err := ph.Engine.DeleteSubject(r.Context(), *person.ExternalSubjectID); err != nil {
			log.Printf("Warning: failed to delete engine subject %s for person %d: %v", *person.ExternalSubjectID, personID, err)
		}
	}

	if err := ph.PersonRepo.Delete(personID); err != nil {
		writeServiceError(w, "person deletion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
