package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/faceidbackend/models"
	"gorm.io/gorm"
)

// ClusterRepository handles database operations for FaceCluster and
// FaceClusterMember entities
type ClusterRepository struct {
	DB *gorm.DB
}

// NewClusterRepository creates a new instance of ClusterRepository
func NewClusterRepository(db *gorm.DB) *ClusterRepository {
	return &ClusterRepository{DB: db}
}

// CreateWithMembers persists a cluster and its membership rows in one
// transaction, keeping the cached face_count in step with the member rows
func (r *ClusterRepository) CreateWithMembers(cluster *models.FaceCluster, members []models.FaceClusterMember) error {
	now := time.Now().Unix()
	if cluster.CreatedAt == 0 {
		cluster.CreatedAt = now
	}
	cluster.UpdatedAt = now
	cluster.FaceCount = len(members)

	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cluster).Error; err != nil {
			return fmt.Errorf("failed to create cluster %s: %w", cluster.Name, err)
		}
		for i := range members {
			members[i].ClusterID = cluster.ID
			if members[i].CreatedAt == 0 {
				members[i].CreatedAt = now
			}
		}
		if len(members) > 0 {
			if err := tx.Create(&members).Error; err != nil {
				return fmt.Errorf("failed to create members for cluster %s: %w", cluster.Name, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a cluster with its members and their faces preloaded
func (r *ClusterRepository) GetByID(id uint) (*models.FaceCluster, error) {
	var cluster models.FaceCluster
	err := r.DB.Preload("Members").Preload("Members.Face").First(&cluster, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get cluster by ID %d: %w", id, err)
	}
	return &cluster, nil
}

// List retrieves clusters, optionally only those awaiting review
func (r *ClusterRepository) List(unreviewedOnly bool) ([]models.FaceCluster, error) {
	var clusters []models.FaceCluster
	query := r.DB.Order("id ASC")
	if unreviewedOnly {
		query = query.Where("is_reviewed = ?", false)
	}
	err := query.Find(&clusters).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	return clusters, nil
}

// Delete removes a cluster and its membership rows. Member faces themselves
// are untouched.
func (r *ClusterRepository) Delete(id uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cluster_id = ?", id).Delete(&models.FaceClusterMember{}).Error; err != nil {
			return fmt.Errorf("failed to delete members of cluster ID %d: %w", id, err)
		}
		result := tx.Delete(&models.FaceCluster{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete cluster ID %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// DeleteUnreviewedByAlgorithm discards all not-yet-reviewed clusters created
// by one algorithm, cascading membership; used by clustering rebuilds.
// Returns the number of clusters removed.
func (r *ClusterRepository) DeleteUnreviewedByAlgorithm(algorithm string) (int64, error) {
	var removed int64
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.FaceCluster{}).
			Where("algorithm = ? AND is_reviewed = ?", algorithm, false).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to find unreviewed clusters for %s: %w", algorithm, err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("cluster_id IN ?", ids).Delete(&models.FaceClusterMember{}).Error; err != nil {
			return fmt.Errorf("failed to delete members of unreviewed clusters: %w", err)
		}
		result := tx.Where("id IN ?", ids).Delete(&models.FaceCluster{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete unreviewed clusters: %w", result.Error)
		}
		removed = result.RowsAffected
		return nil
	})
	return removed, err
}

// ListMembers retrieves a cluster's membership rows ordered by face id
func (r *ClusterRepository) ListMembers(clusterID uint) ([]models.FaceClusterMember, error) {
	var members []models.FaceClusterMember
	err := r.DB.Where("cluster_id = ?", clusterID).Order("face_id ASC").Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list members for cluster ID %d: %w", clusterID, err)
	}
	return members, nil
}

// ListClusteredFaceIDs returns the distinct face ids present in any cluster's
// membership rows
func (r *ClusterRepository) ListClusteredFaceIDs() ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&models.FaceClusterMember{}).Distinct().Order("face_id ASC").Pluck("face_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list clustered face IDs: %w", err)
	}
	return ids, nil
}

// SetRepresentative makes faceID the cluster's only representative. The set
// and the clear happen in one transaction so there is never a moment with
// two representatives visible.
func (r *ClusterRepository) SetRepresentative(clusterID, faceID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.FaceClusterMember{}).
			Where("cluster_id = ? AND face_id = ?", clusterID, faceID).
			Update("is_representative", true)
		if result.Error != nil {
			return fmt.Errorf("failed to set representative face ID %d in cluster ID %d: %w", faceID, clusterID, result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		err := tx.Model(&models.FaceClusterMember{}).
			Where("cluster_id = ? AND face_id <> ?", clusterID, faceID).
			Update("is_representative", false).Error
		if err != nil {
			return fmt.Errorf("failed to clear previous representative in cluster ID %d: %w", clusterID, err)
		}
		return nil
	})
}

// RecomputeFaceCount refreshes the cached face_count from member rows
func (r *ClusterRepository) RecomputeFaceCount(clusterID uint) error {
	err := r.DB.Model(&models.FaceCluster{}).Where("id = ?", clusterID).Updates(map[string]interface{}{
		"face_count": gorm.Expr("(SELECT COUNT(*) FROM face_cluster_members WHERE cluster_id = ?)", clusterID),
		"updated_at": time.Now().Unix(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to recompute face count for cluster ID %d: %w", clusterID, err)
	}
	return nil
}

// MarkReviewed flags a cluster as human-reviewed, optionally recording notes
func (r *ClusterRepository) MarkReviewed(clusterID uint, notes *string) error {
	updates := map[string]interface{}{
		"is_reviewed": true,
		"updated_at":  time.Now().Unix(),
	}
	if notes != nil {
		updates["notes"] = *notes
	}
	result := r.DB.Model(&models.FaceCluster{}).Where("id = ?", clusterID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to mark cluster ID %d reviewed: %w", clusterID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AssignPerson marks a cluster reviewed and linked to a person
func (r *ClusterRepository) AssignPerson(clusterID, personID uint) error {
	updates := map[string]interface{}{
		"is_reviewed":        true,
		"assigned_person_id": personID,
		"updated_at":         time.Now().Unix(),
	}
	result := r.DB.Model(&models.FaceCluster{}).Where("id = ?", clusterID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to assign cluster ID %d to person ID %d: %w", clusterID, personID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
