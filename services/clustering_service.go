package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/camden-git/faceidbackend/models"
	"github.com/camden-git/faceidbackend/recognition"
	"github.com/camden-git/faceidbackend/repository"
	"github.com/camden-git/faceidbackend/utils"
)

// ClusteringService groups visually similar unassigned faces into candidate
// clusters for the review workflow. It also fronts the similarity store for
// direct record/query operations.
type ClusteringService struct {
	faceRepo    repository.FaceRepositoryInterface
	simRepo     repository.SimilarityRepositoryInterface
	clusterRepo repository.ClusterRepositoryInterface
	engine      recognition.Engine
	images      ImageSource

	// a clustering run must not overlap with itself
	running atomic.Bool
}

// NewClusteringService creates a new clustering service
func NewClusteringService(
	faceRepo repository.FaceRepositoryInterface,
	simRepo repository.SimilarityRepositoryInterface,
	clusterRepo repository.ClusterRepositoryInterface,
	engine recognition.Engine,
	images ImageSource,
) *ClusteringService {
	return &ClusteringService{
		faceRepo:    faceRepo,
		simRepo:     simRepo,
		clusterRepo: clusterRepo,
		engine:      engine,
		images:      images,
	}
}

// ClusteringOptions configures one clustering run.
type ClusteringOptions struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MinClusterSize      int     `json:"min_cluster_size"`
	MaxClusterSize      int     `json:"max_cluster_size"`
	Algorithm           string  `json:"algorithm"`
	Rebuild             bool    `json:"rebuild"`
}

// ClusteringResult summarizes a finished clustering run.
type ClusteringResult struct {
	ClustersCreated        int   `json:"clusters_created"`
	FacesProcessed         int   `json:"faces_processed"`
	SimilaritiesCalculated int   `json:"similarities_calculated"`
	ComparisonErrors       int   `json:"comparison_errors"`
	TimeElapsedMs          int64 `json:"time_elapsed_ms"`
}

type pairKey struct {
	a, b uint // a < b
}

func keyFor(x, y uint) pairKey {
	a, b := models.NormalizePair(x, y)
	return pairKey{a: a, b: b}
}

// RunClustering executes one full clustering pass per the configured
// options. Only one run may be in flight at a time.
func (s *ClusteringService) RunClustering(ctx context.Context, opts ClusteringOptions) (*ClusteringResult, error) {
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		return nil, NewValidationError("similarity threshold must be in (0,1], got %g", opts.SimilarityThreshold)
	}
	if opts.MinClusterSize < 2 {
		return nil, NewValidationError("min cluster size must be at least 2, got %d", opts.MinClusterSize)
	}
	if opts.MaxClusterSize < opts.MinClusterSize {
		return nil, NewValidationError("max cluster size %d is smaller than min cluster size %d", opts.MaxClusterSize, opts.MinClusterSize)
	}
	if opts.Algorithm == "" {
		return nil, NewValidationError("algorithm must not be empty")
	}

	if !s.running.CompareAndSwap(false, true) {
		return nil, NewValidationError("a clustering run is already in progress")
	}
	defer s.running.Store(false)

	start := time.Now()

	if opts.Rebuild {
		removed, err := s.clusterRepo.DeleteUnreviewedByAlgorithm(opts.Algorithm)
		if err != nil {
			return nil, err
		}
		log.Printf("Clustering rebuild: discarded %d unreviewed clusters for algorithm %s", removed, opts.Algorithm)
		for _, method := range []string{models.ComparisonExternalAPI, models.ComparisonBoundingBox} {
			if err := s.simRepo.DeleteByMethod(method); err != nil {
				return nil, err
			}
		}
	}

	faces, err := s.faceRepo.ListUnassigned()
	if err != nil {
		return nil, err
	}

	// faces kept by surviving clusters (reviewed ones, or any cluster when
	// not rebuilding) are spoken for; regrouping them would duplicate whole
	// clusters on every run
	clusteredIDs, err := s.clusterRepo.ListClusteredFaceIDs()
	if err != nil {
		return nil, err
	}
	if len(clusteredIDs) > 0 {
		inCluster := make(map[uint]bool, len(clusteredIDs))
		for _, id := range clusteredIDs {
			inCluster[id] = true
		}
		loose := faces[:0]
		for _, f := range faces {
			if !inCluster[f.ID] {
				loose = append(loose, f)
			}
		}
		faces = loose
	}

	result := &ClusteringResult{FacesProcessed: len(faces)}
	if len(faces) < opts.MinClusterSize {
		result.TimeElapsedMs = time.Since(start).Milliseconds()
		return result, nil
	}

	edges, err := s.computeSimilarities(ctx, faces, result)
	if err != nil {
		return nil, err
	}

	clusters := buildClusters(faces, edges, opts)

	for i, c := range clusters {
		cluster := &models.FaceCluster{
			Name:                clusterName(i, c.faceIDs),
			Algorithm:           opts.Algorithm,
			SimilarityThreshold: opts.SimilarityThreshold,
			AvgSimilarity:       c.avgSimilarity,
		}
		members := make([]models.FaceClusterMember, 0, len(c.faceIDs))
		for _, id := range c.faceIDs {
			members = append(members, models.FaceClusterMember{
				FaceID:              id,
				SimilarityToCluster: c.memberSimilarity[id],
				IsRepresentative:    id == c.representative,
			})
		}
		if err := s.clusterRepo.CreateWithMembers(cluster, members); err != nil {
			return nil, err
		}
		result.ClustersCreated++
	}

	result.TimeElapsedMs = time.Since(start).Milliseconds()
	log.Printf("Clustering run finished: %d clusters from %d faces (%d similarities computed, %d comparison errors) in %dms",
		result.ClustersCreated, result.FacesProcessed, result.SimilaritiesCalculated, result.ComparisonErrors, result.TimeElapsedMs)
	return result, nil
}

// computeSimilarities fills the pairwise similarity graph over the candidate
// faces, reusing stored scores and persisting newly computed ones. Faces
// detected in the same image are compared by bounding-box overlap, which
// groups near-duplicate detections of the same physical face; faces from
// different images go through the engine's comparison endpoint. A failed
// engine comparison skips the pair (similarity 0) and never fails the run.
func (s *ClusteringService) computeSimilarities(ctx context.Context, faces []models.DetectedFace, result *ClusteringResult) (map[pairKey]float64, error) {
	faceIDs := make([]uint, 0, len(faces))
	for _, f := range faces {
		faceIDs = append(faceIDs, f.ID)
	}

	edges := make(map[pairKey]float64)
	for _, method := range []string{models.ComparisonExternalAPI, models.ComparisonBoundingBox, models.ComparisonManual} {
		stored, err := s.simRepo.ListAmongFaces(faceIDs, method)
		if err != nil {
			return nil, err
		}
		for _, e := range stored {
			k := pairKey{a: e.FaceAID, b: e.FaceBID}
			if e.Similarity > edges[k] {
				edges[k] = e.Similarity
			}
		}
	}

	crops := make(map[uint][]byte)
	cropFor := func(f models.DetectedFace) []byte {
		if data, ok := crops[f.ID]; ok {
			return data
		}
		data, err := s.images.FaceCrop(f.ImagePath, f.XMin, f.YMin, f.XMax, f.YMax)
		if err != nil {
			log.Printf("Warning: failed to load crop for face %d (%s): %v", f.ID, f.ImagePath, err)
			data = nil
		}
		crops[f.ID] = data
		return data
	}

	for i := 0; i < len(faces); i++ {
		for j := i + 1; j < len(faces); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			a, b := faces[i], faces[j]
			k := keyFor(a.ID, b.ID)
			if _, ok := edges[k]; ok {
				continue
			}

			if a.ImagePath == b.ImagePath {
				score := utils.IntersectionOverUnion(
					utils.Box{XMin: a.XMin, YMin: a.YMin, XMax: a.XMax, YMax: a.YMax},
					utils.Box{XMin: b.XMin, YMin: b.YMin, XMax: b.XMax, YMax: b.YMax},
				)
				edges[k] = score
				result.SimilaritiesCalculated++
				if score > 0 {
					if err := s.simRepo.Upsert(a.ID, b.ID, score, models.ComparisonBoundingBox); err != nil {
						return nil, err
					}
				}
				continue
			}

			cropA, cropB := cropFor(a), cropFor(b)
			if cropA == nil || cropB == nil {
				continue
			}
			score, err := s.engine.CompareFaces(ctx, cropA, cropB)
			if err != nil {
				log.Printf("Warning: engine comparison failed for faces %d/%d, skipping pair: %v", a.ID, b.ID, err)
				result.ComparisonErrors++
				continue
			}
			edges[k] = score
			result.SimilaritiesCalculated++
			if err := s.simRepo.Upsert(a.ID, b.ID, score, models.ComparisonExternalAPI); err != nil {
				return nil, err
			}
		}
	}
	return edges, nil
}

type candidateCluster struct {
	faceIDs          []uint
	memberSimilarity map[uint]float64
	representative   uint
	avgSimilarity    float64
}

// buildClusters greedily forms clusters from the similarity graph. Seed
// pairs are taken in descending score order, ties broken by lower face id,
// so identical input always yields identical clusters.
func buildClusters(faces []models.DetectedFace, edges map[pairKey]float64, opts ClusteringOptions) []candidateCluster {
	type seed struct {
		key   pairKey
		score float64
	}
	seeds := make([]seed, 0)
	for k, score := range edges {
		if score >= opts.SimilarityThreshold {
			seeds = append(seeds, seed{key: k, score: score})
		}
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].score != seeds[j].score {
			return seeds[i].score > seeds[j].score
		}
		if seeds[i].key.a != seeds[j].key.a {
			return seeds[i].key.a < seeds[j].key.a
		}
		return seeds[i].key.b < seeds[j].key.b
	})

	allIDs := make([]uint, 0, len(faces))
	for _, f := range faces {
		allIDs = append(allIDs, f.ID)
	}
	sort.Slice(allIDs, func(i, j int) bool { return allIDs[i] < allIDs[j] })

	clustered := make(map[uint]bool)
	var clusters []candidateCluster

	for _, sd := range seeds {
		if clustered[sd.key.a] || clustered[sd.key.b] {
			continue
		}
		members := []uint{sd.key.a, sd.key.b}

		// absorb the best remaining face whose average similarity to the
		// current members clears the threshold, until the size cap
		for len(members) < opts.MaxClusterSize {
			bestID := uint(0)
			bestAvg := 0.0
			found := false
			for _, id := range allIDs {
				if clustered[id] || contains(members, id) {
					continue
				}
				avg := averageSimilarityTo(id, members, edges)
				if avg < opts.SimilarityThreshold {
					continue
				}
				if !found || avg > bestAvg || (avg == bestAvg && id < bestID) {
					bestID, bestAvg, found = id, avg, true
				}
			}
			if !found {
				break
			}
			members = append(members, bestID)
		}

		if len(members) < opts.MinClusterSize {
			// too small; members stay unclustered and eligible for later
			// seeds or loose individual assignment
			continue
		}

		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

		memberSim := make(map[uint]float64, len(members))
		repID := members[0]
		repAvg := -1.0
		total := 0.0
		pairs := 0
		for _, id := range members {
			others := make([]uint, 0, len(members)-1)
			for _, o := range members {
				if o != id {
					others = append(others, o)
				}
			}
			avg := averageSimilarityTo(id, others, edges)
			memberSim[id] = avg
			if avg > repAvg {
				repID, repAvg = id, avg
			}
		}
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				total += edges[keyFor(members[i], members[j])]
				pairs++
			}
		}

		for _, id := range members {
			clustered[id] = true
		}
		clusters = append(clusters, candidateCluster{
			faceIDs:          members,
			memberSimilarity: memberSim,
			representative:   repID,
			avgSimilarity:    total / float64(pairs),
		})
	}
	return clusters
}

// averageSimilarityTo returns the mean stored similarity between id and the
// given members; missing edges count as 0.
func averageSimilarityTo(id uint, members []uint, edges map[pairKey]float64) float64 {
	if len(members) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range members {
		total += edges[keyFor(id, m)]
	}
	return total / float64(len(members))
}

func contains(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// clusterName produces a stable, human-editable default name from the run
// index and the cluster's lowest face id.
func clusterName(index int, memberIDs []uint) string {
	lowest := memberIDs[0]
	for _, id := range memberIDs {
		if id < lowest {
			lowest = id
		}
	}
	return fmt.Sprintf("Cluster %d (face %d)", index+1, lowest)
}

// RecordSimilarity stores a manually supplied or externally computed score
// in the similarity store.
func (s *ClusteringService) RecordSimilarity(faceA, faceB uint, score float64, method string) error {
	if faceA == faceB {
		return NewValidationError("cannot record similarity of face %d to itself", faceA)
	}
	if score < 0 || score > 1 {
		return NewValidationError("similarity score must be in [0,1], got %g", score)
	}
	switch method {
	case models.ComparisonEmbedding, models.ComparisonExternalAPI, models.ComparisonBoundingBox, models.ComparisonManual:
	default:
		return NewValidationError("unknown comparison method %q", method)
	}
	return s.simRepo.Upsert(faceA, faceB, score, method)
}

// SimilarFaces returns unassigned faces stored as similar to faceID at or
// above threshold, best first. An empty result is not an error.
func (s *ClusteringService) SimilarFaces(faceID uint, threshold float64, limit int) ([]repository.SimilarFace, error) {
	if threshold < 0 || threshold > 1 {
		return nil, NewValidationError("similarity threshold must be in [0,1], got %g", threshold)
	}
	if _, err := s.faceRepo.GetByID(faceID); err != nil {
		return nil, err
	}
	results, err := s.simRepo.GetSimilarFaces(faceID, threshold, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []repository.SimilarFace{}
	}
	return results, nil
}
