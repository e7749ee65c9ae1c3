package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/camden-git/faceidbackend/config"
	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/camden-git/faceidbackend/services"
	"github.com/facette/natsort"
	"github.com/go-chi/chi/v5"
)

// ClusterHandler serves the clustering run trigger and the cluster review
// surface.
type ClusterHandler struct {
	Clustering  *services.ClusteringService
	Assignment  *services.AssignmentService
	ClusterRepo repository.ClusterRepositoryInterface
	Cfg         config.Config
}

// RunClustering triggers a clustering pass. Body fields are optional and
// default to the deployment configuration.
func (ch *ClusterHandler) RunClustering(w http.ResponseWriter, r *http.Request) {
	opts := services.ClusteringOptions{
		SimilarityThreshold: ch.Cfg.SimilarityThreshold,
		MinClusterSize:      ch.Cfg.MinClusterSize,
		MaxClusterSize:      ch.Cfg.MaxClusterSize,
		Algorithm:           ch.Cfg.ClusterAlgorithm,
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
			return
		}
	}

	result, err := ch.Clustering.RunClustering(r.Context(), opts)
	if err != nil {
		writeServiceError(w, "clustering run", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListClusters lists clusters, optionally only unreviewed ones, in natural
// name order.
func (ch *ClusterHandler) ListClusters(w http.ResponseWriter, r *http.Request) {
	unreviewedOnly := r.URL.Query().Get("unreviewed") == "true"
	clusters, err := ch.ClusterRepo.List(unreviewedOnly)
	if err != nil {
		writeServiceError(w, "cluster list", err)
		return
	}
	if clusters == nil {
		clusters = []models.FaceCluster{}
	}
	sort.SliceStable(clusters, func(i, j int) bool {
		return natsort.Compare(clusters[i].Name, clusters[j].Name)
	})
	writeJSON(w, http.StatusOK, clusters)
}

// GetCluster returns one cluster with its members and faces.
func (ch *ClusterHandler) GetCluster(w http.ResponseWriter, r *http.Request) {
	clusterID, err := parseIDParam(chi.URLParam(r, "cluster_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid cluster ID format")
		return
	}
	cluster, err := ch.ClusterRepo.GetByID(clusterID)
	if err != nil {
		writeServiceError(w, "cluster", err)
		return
	}
	writeJSON(w, http.StatusOK, cluster)
}

// AssignCluster assigns all assignable members of a cluster to a person.
func (ch *ClusterHandler) AssignCluster(w http.ResponseWriter, r *http.Request) {
	clusterID, err := parseIDParam(chi.URLParam(r, "cluster_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid cluster ID format")
		return
	}

	var req struct {
		PersonID   uint    `json:"person_id"`
		AssignedBy *string `json:"assigned_by,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}
	if req.PersonID == 0 {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "person_id is required")
		return
	}

	assigned, err := ch.Assignment.AssignCluster(clusterID, req.PersonID, req.AssignedBy)
	if err != nil {
		writeServiceError(w, "cluster assignment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cluster_id":     clusterID,
		"person_id":      req.PersonID,
		"faces_assigned": assigned,
	})
}

// ReviewCluster applies an approve/reject/split decision to a cluster.
func (ch *ClusterHandler) ReviewCluster(w http.ResponseWriter, r *http.Request) {
	clusterID, err := parseIDParam(chi.URLParam(r, "cluster_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid cluster ID format")
		return
	}

	var req struct {
		Action         string  `json:"action"`
		Notes          *string `json:"notes,omitempty"`
		InvalidFaceIDs []uint  `json:"invalid_face_ids,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	if err := ch.Assignment.ReviewCluster(clusterID, req.Action, req.Notes, req.InvalidFaceIDs); err != nil {
		writeServiceError(w, "cluster review", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cluster_id": clusterID,
		"action":     req.Action,
	})
}

// DeleteCluster removes a cluster, leaving its member faces untouched.
func (ch *ClusterHandler) DeleteCluster(w http.ResponseWriter, r *http.Request) {
	clusterID, err := parseIDParam(chi.URLParam(r, "cluster_id"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "bad_request", "Invalid cluster ID format")
		return
	}
	if err := ch.ClusterRepo.Delete(clusterID); err != nil {
		writeServiceError(w, "cluster", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
