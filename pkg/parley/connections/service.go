// Package connections manages user-to-user connection requests and the
// connections they become once accepted.
package connections

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mikepea/parley/pkg/parley/apperr"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/store"
)

// Service implements the connection lifecycle:
// request -> accepted/rejected -> (accepted) removed.
type Service struct {
	db *gorm.DB
}

// NewService creates a connection service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SendRequest creates a pending request from actor to target. Any existing
// request between the pair, in either direction and of any status, blocks a
// new one.
func (s *Service) SendRequest(ctx context.Context, actorID, targetID uint) (models.ConnectionRequest, error) {
	if actorID == targetID {
		return models.ConnectionRequest{}, apperr.SelfReference("Cannot send request to yourself")
	}

	db := s.db.WithContext(ctx)
	if _, err := store.FindUser(db, targetID); err != nil {
		return models.ConnectionRequest{}, err
	}

	request := models.NewConnectionRequest(actorID, targetID)

	var existing int64
	if err := db.Model(&models.ConnectionRequest{}).
		Where("pair_low = ? AND pair_high = ?", request.PairLow, request.PairHigh).
		Count(&existing).Error; err != nil {
		return request, errors.Wrap(err, "check existing request")
	}
	if existing > 0 {
		return request, apperr.Duplicate("Request already exists")
	}

	// The pair index catches a concurrent send that passed the check above
	if err := db.Create(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return request, apperr.Duplicate("Request already exists")
		}
		return request, errors.Wrap(err, "create request")
	}
	return request, nil
}

// ReviewRequest accepts or rejects a pending request addressed to actor.
// Requests addressed to someone else are reported as not found.
func (s *Service) ReviewRequest(ctx context.Context, actorID, requestID uint, decision models.RequestStatus) (models.ConnectionRequest, error) {
	var request models.ConnectionRequest
	if decision != models.StatusAccepted && decision != models.StatusRejected {
		return request, apperr.Validation("Invalid status value")
	}

	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&request, requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && request.ReceiverID != actorID) {
			return apperr.NotFound("Request not found with this id")
		}
		if err != nil {
			return errors.Wrap(err, "load request")
		}
		if request.Status != models.StatusPending {
			return apperr.Duplicate("Request already %s", request.Status)
		}

		request.Status = decision
		return errors.Wrap(tx.Model(&request).Update("status", decision).Error, "update request")
	})
	return request, err
}

// RemoveConnection deletes the accepted request between actor and other
func (s *Service) RemoveConnection(ctx context.Context, actorID, otherID uint) error {
	pair := models.NewConnectionRequest(actorID, otherID)
	res := s.db.WithContext(ctx).
		Where("pair_low = ? AND pair_high = ? AND status = ?", pair.PairLow, pair.PairHigh, models.StatusAccepted).
		Delete(&models.ConnectionRequest{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete connection")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("User connection not found to remove")
	}
	return nil
}

// ListConnections returns the ids of the users actor is connected to
func (s *Service) ListConnections(ctx context.Context, actorID uint) ([]uint, error) {
	var accepted []models.ConnectionRequest
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?) AND status = ?", actorID, actorID, models.StatusAccepted).
		Order("updated_at, id").
		Find(&accepted).Error
	if err != nil {
		return nil, errors.Wrap(err, "list connections")
	}

	peers := make([]uint, len(accepted))
	for i, r := range accepted {
		peers[i] = r.Peer(actorID)
	}
	return peers, nil
}

// ListIncomingRequests returns pending requests addressed to actor
func (s *Service) ListIncomingRequests(ctx context.Context, actorID uint) ([]models.ConnectionRequest, error) {
	var pending []models.ConnectionRequest
	err := s.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", actorID, models.StatusPending).
		Order("created_at, id").
		Find(&pending).Error
	return pending, errors.Wrap(err, "list incoming requests")
}

// ExploreCandidates returns users with no request of any status with actor,
// excluding actor.
func (s *Service) ExploreCandidates(ctx context.Context, actorID uint) ([]uint, error) {
	db := s.db.WithContext(ctx)
	sent := db.Model(&models.ConnectionRequest{}).Select("receiver_id").Where("sender_id = ?", actorID)
	received := db.Model(&models.ConnectionRequest{}).Select("sender_id").Where("receiver_id = ?", actorID)

	var ids []uint
	err := db.Model(&models.User{}).
		Where("id <> ?", actorID).
		Where("id NOT IN (?)", sent).
		Where("id NOT IN (?)", received).
		Order("id").
		Pluck("id", &ids).Error
	return ids, errors.Wrap(err, "explore users")
}
