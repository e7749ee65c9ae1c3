package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/camden-git/faceidbackend/services"
	"github.com/go-chi/chi/v5"
)

// FaceHandler serves face-level assignment, sentinel flagging and the
// similarity store surface.
type FaceHandler struct {
	FaceRepo    repository.FaceRepositoryInterface
	Assignment  *services.AssignmentService
	Clustering  *services.ClusteringService
	Recognition *services.RecognitionService
}

// GetFace returns one detected face with its person, if any.
func (fh *FaceHandler) GetFace(w http.ResponseWriter, r *http.Request) {
	faceID, err := parseIDParam(chi.URLParam(r, "face_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid face ID format")
		return
	}
	face, err := fh.FaceRepo.GetByID(faceID)
	if err != nil {
		writeServiceError(w, "face", err)
		return
	}
	writeJSON(w, http.StatusOK, face)
}

// ListFacesByImage lists every detected face in one image.
func (fh *FaceHandler) ListFacesByImage(w http.ResponseWriter, r *http.Request) {
	pathParam := r.URL.Query().Get("path")
	if pathParam == "" {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Missing required query parameter: path")
		return
	}
	imagePath, err := url.QueryUnescape(pathParam)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid URL encoding for path parameter")
		return
	}
	faces, err := fh.FaceRepo.ListByImagePath(filepath.ToSlash(filepath.Clean(imagePath)))
	if err != nil {
		writeServiceError(w, "face list", err)
		return
	}
	if faces == nil {
		faces = []models.DetectedFace{}
	}
	writeJSON(w, http.StatusOK, faces)
}

// AssignFace links a face to a person.
func (fh *FaceHandler) AssignFace(w http.ResponseWriter, r *http.Request) {
	faceID, err := parseIDParam(chi.URLParam(r, "face_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid face ID format")
		return
	}

	var req struct {
		PersonID   uint     `json:"person_id"`
		Confidence *float64 `json:"confidence,omitempty"`
		Method     string   `json:"method,omitempty"`
		AssignedBy *string  `json:"assigned_by,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.PersonID == 0 {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "person_id is required")
		return
	}
	if req.Method == "" {
		req.Method = models.MethodManual
	}

	if err := fh.Assignment.AssignFace(faceID, req.PersonID, req.Confidence, req.Method, req.AssignedBy); err != nil {
		writeServiceError(w, "face assignment", err)
		return
	}
	face, err := fh.FaceRepo.GetByID(faceID)
	if err != nil {
		writeServiceError(w, "face", err)
		return
	}
	writeJSON(w, http.StatusOK, face)
}

// RemoveAssignment returns a face to the unidentified pool.
func (fh *FaceHandler) RemoveAssignment(w http.ResponseWriter, r *http.Request) {
	faceID, err := parseIDParam(chi.URLParam(r, "face_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid face ID format")
		return
	}
	if err := fh.Assignment.RemoveAssignment(faceID); err != nil {
		writeServiceError(w, "assignment removal", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkInvalid flags a face as not-a-face.
func (fh *FaceHandler) MarkInvalid(w http.ResponseWriter, r *http.Request) {
	fh.markSentinel(w, r, fh.Assignment.MarkInvalid)
}

// MarkUnknown flags a face as an unidentifiable background person.
func (fh *FaceHandler) MarkUnknown(w http.ResponseWriter, r *http.Request) {
	fh.markSentinel(w, r, fh.Assignment.MarkUnknown)
}

func (fh *FaceHandler) markSentinel(w http.ResponseWriter, r *http.Request, mark func(uint) error) {
	faceID, err := parseIDParam(chi.URLParam(r, "face_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid face ID format")
		return
	}
	if err := mark(faceID); err != nil {
		writeServiceError(w, "face flag", err)
		return
	}
	face, err := fh.FaceRepo.GetByID(faceID)
	if err != nil {
		writeServiceError(w, "face", err)
		return
	}
	writeJSON(w, http.StatusOK, face)
}

// SimilarFaces returns stored similar faces for a face.
// GET /api/faces/{face_id}/similar?threshold=0.8&limit=20
func (fh *FaceHandler) SimilarFaces(w http.ResponseWriter, r *http.Request) {
	faceID, err := parseIDParam(chi.URLParam(r, "face_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid face ID format")
		return
	}

	threshold := 0.0
	if t := r.URL.Query().Get("threshold"); t != "" {
		threshold, err = strconv.ParseFloat(t, 64)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid threshold value")
			return
		}
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit <= 0 {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid limit value")
			return
		}
	}

	results, err := fh.Clustering.SimilarFaces(faceID, threshold, limit)
	if err != nil {
		writeServiceError(w, "similar faces", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// RecordSimilarity stores a similarity score between two faces.
// POST /api/faces/similarity
func (fh *FaceHandler) RecordSimilarity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FaceAID uint    `json:"face_a_id"`
		FaceBID uint    `json:"face_b_id"`
		Score   float64 `json:"score"`
		Method  string  `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.FaceAID == 0 || req.FaceBID == 0 {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "face_a_id and face_b_id are required")
		return
	}
	if req.Method == "" {
		req.Method = models.ComparisonManual
	}

	if err := fh.Clustering.RecordSimilarity(req.FaceAID, req.FaceBID, req.Score, req.Method); err != nil {
		writeServiceError(w, "similarity record", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ConfirmMatch applies a needs-confirmation recognition match.
// POST /api/faces/{face_id}/confirm
func (fh *FaceHandler) ConfirmMatch(w http.ResponseWriter, r *http.Request) {
	faceID, err := parseIDParam(chi.URLParam(r, "face_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid face ID format")
		return
	}

	var req struct {
		PersonID    uint    `json:"person_id"`
		Similarity  float64 `json:"similarity"`
		ConfirmedBy *string `json:"confirmed_by,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.PersonID == 0 {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "person_id is required")
		return
	}

	if err := fh.Recognition.ConfirmMatch(faceID, req.PersonID, req.Similarity, req.ConfirmedBy); err != nil {
		writeServiceError(w, "match confirmation", err)
		return
	}
	face, err := fh.FaceRepo.GetByID(faceID)
	if err != nil {
		writeServiceError(w, "face", err)
		return
	}
	writeJSON(w, http.StatusOK, face)
}
