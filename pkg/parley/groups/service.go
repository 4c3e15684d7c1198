// Package groups manages groups, their members and the invites that lead to
// membership. Every membership change writes the group's member list and the
// user's group list in the same transaction.
package groups

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mikepea/parley/pkg/parley/apperr"
	"github.com/mikepea/parley/pkg/parley/media"
	"github.com/mikepea/parley/pkg/parley/models"
	"github.com/mikepea/parley/pkg/parley/store"
)

// MaxDescriptionLength is the longest group description accepted
const MaxDescriptionLength = 200

// Service implements the group membership state machine
type Service struct {
	db    *gorm.DB
	media media.Store
}

// NewService creates a group service. Photos are uploaded through media.
func NewService(db *gorm.DB, media media.Store) *Service {
	return &Service{db: db, media: media}
}

// CreateInput holds the fields for a new group
type CreateInput struct {
	Name        string
	Description string
	Visibility  models.Visibility
}

// Patch holds the group fields to change. Nil fields are left alone.
// Photo is image data handed to the media store, not a URL.
type Patch struct {
	Name        *string
	Description *string
	Photo       *string
	Visibility  *models.Visibility
}

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Photo == nil && p.Visibility == nil
}

// CreateGroup creates a group with actor as admin and sole member
func (s *Service) CreateGroup(ctx context.Context, actorID uint, in CreateInput) (models.Group, error) {
	group := models.Group{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		AdminID:     actorID,
		Visibility:  in.Visibility,
	}
	if group.Visibility == "" {
		group.Visibility = models.VisibilityPublic
	}
	if err := validate(group); err != nil {
		return group, err
	}

	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return errors.Wrap(err, "create group")
		}
		return store.AddMembership(tx, group.ID, actorID)
	})
	return group, err
}

// JoinGroup adds actor to a public group
func (s *Service) JoinGroup(ctx context.Context, actorID, groupID uint) (models.Group, error) {
	var group models.Group
	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		if group, err = store.LockGroup(tx, groupID); err != nil {
			return err
		}
		if group.Visibility == models.VisibilityPrivate {
			return apperr.Forbidden("This group is private, an invite is required")
		}
		if err := store.AddMembership(tx, group.ID, actorID); err != nil {
			return err
		}
		return resolveInvites(tx, group.ID, actorID)
	})
	return group, err
}

// SendInvite invites target to a group. Only the admin can invite, and a
// pending or rejected invite for the same user and group blocks a new one.
func (s *Service) SendInvite(ctx context.Context, actorID, groupID, targetID uint) (models.GroupInvite, error) {
	invite := models.GroupInvite{
		SenderID:   actorID,
		ReceiverID: targetID,
		GroupID:    groupID,
		Status:     models.StatusPending,
	}

	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		group, err := store.LockGroup(tx, groupID)
		if err != nil {
			return err
		}
		if group.AdminID != actorID {
			return apperr.Forbidden("Only the group admin can send invites")
		}
		if _, err := store.FindUser(tx, targetID); err != nil {
			return err
		}

		member, err := store.IsMember(tx, groupID, targetID)
		if err != nil {
			return err
		}
		if member {
			return apperr.Duplicate("User is already a group member")
		}

		var open int64
		if err := tx.Model(&models.GroupInvite{}).
			Where("group_id = ? AND receiver_id = ? AND status IN ?", groupID, targetID,
				[]models.RequestStatus{models.StatusPending, models.StatusRejected}).
			Count(&open).Error; err != nil {
			return errors.Wrap(err, "check existing invite")
		}
		if open > 0 {
			return apperr.Duplicate("Invite already sent to this user")
		}

		return errors.Wrap(tx.Create(&invite).Error, "create invite")
	})
	return invite, err
}

// ReviewInvite accepts or rejects an invite addressed to actor. Accepting
// adds actor to the group in the same transaction that marks the invite.
func (s *Service) ReviewInvite(ctx context.Context, actorID, inviteID uint, decision models.RequestStatus) (models.GroupInvite, error) {
	var invite models.GroupInvite
	if decision != models.StatusAccepted && decision != models.StatusRejected {
		return invite, apperr.Validation("Invalid status value")
	}

	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		if err := tx.First(&invite, inviteID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("Invite not found")
			}
			return errors.Wrap(err, "load invite")
		}
		if _, err := store.LockGroup(tx, invite.GroupID); err != nil {
			return err
		}
		// Reload under the group lock so a concurrent review is seen
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&invite, inviteID).Error; err != nil {
			return errors.Wrap(err, "reload invite")
		}
		if invite.ReceiverID != actorID {
			return apperr.Forbidden("This invite is not addressed to you")
		}
		if invite.Status != models.StatusPending {
			return apperr.Duplicate("Invite already %s", invite.Status)
		}

		if decision == models.StatusAccepted {
			if err := store.AddMembership(tx, invite.GroupID, actorID); err != nil {
				return err
			}
		}
		invite.Status = decision
		return errors.Wrap(tx.Model(&invite).Update("status", decision).Error, "update invite")
	})
	return invite, err
}

// AddMember adds target directly. Private users can only join by invite.
func (s *Service) AddMember(ctx context.Context, actorID, groupID, targetID uint) error {
	return store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := s.lockAsAdmin(tx, actorID, groupID, "Only the group admin can add members"); err != nil {
			return err
		}
		if targetID == actorID {
			return apperr.SelfReference("You are already a member of this group")
		}

		target, err := store.FindUser(tx, targetID)
		if err != nil {
			return err
		}
		if target.Private {
			return apperr.Forbidden("User has a private account, send an invite instead")
		}
		if err := store.AddMembership(tx, groupID, targetID); err != nil {
			return err
		}
		return resolveInvites(tx, groupID, targetID)
	})
}

// RemoveMember removes target from the group. The admin cannot remove
// themself; that would leave the group without an admin.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, targetID uint) error {
	return store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := s.lockAsAdmin(tx, actorID, groupID, "Only the group admin can remove members"); err != nil {
			return err
		}
		if targetID == actorID {
			return apperr.SelfReference("The admin cannot be removed from the group")
		}
		return store.RemoveMembership(tx, groupID, targetID)
	})
}

// ExitGroup removes actor from a group they belong to. The admin must
// delete the group instead.
func (s *Service) ExitGroup(ctx context.Context, actorID, groupID uint) error {
	return store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		group, err := store.LockGroup(tx, groupID)
		if err != nil {
			return err
		}
		member, err := store.IsMember(tx, groupID, actorID)
		if err != nil {
			return err
		}
		if !member {
			return apperr.NotFound("You are not a member of this group")
		}
		if group.AdminID == actorID {
			return apperr.Forbidden("The admin cannot exit the group, delete it instead")
		}
		return store.RemoveMembership(tx, groupID, actorID)
	})
}

// DeleteGroup removes the group with its memberships, messages, read
// records and invites.
func (s *Service) DeleteGroup(ctx context.Context, actorID, groupID uint) error {
	return store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		group, err := s.lockAsAdmin(tx, actorID, groupID, "Only the group admin can delete the group")
		if err != nil {
			return err
		}

		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMessageRead{}).Error; err != nil {
			return errors.Wrap(err, "delete read records")
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMessage{}).Error; err != nil {
			return errors.Wrap(err, "delete group messages")
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupInvite{}).Error; err != nil {
			return errors.Wrap(err, "delete invites")
		}
		if err := store.RemoveAllMemberships(tx, groupID); err != nil {
			return err
		}
		return errors.Wrap(tx.Delete(&group).Error, "delete group")
	})
}

// UpdateGroup applies patch to a group. A new photo is uploaded before the
// transaction starts so no lock is held during the upload.
func (s *Service) UpdateGroup(ctx context.Context, actorID, groupID uint, patch Patch) (models.Group, error) {
	if patch.Empty() {
		return models.Group{}, apperr.Validation("Nothing to update")
	}

	group, err := store.FindGroup(s.db.WithContext(ctx), groupID)
	if err != nil {
		return group, err
	}
	if group.AdminID != actorID {
		return group, apperr.Forbidden("Only the group admin can update the group")
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		group.Name = strings.TrimSpace(*patch.Name)
		updates["name"] = group.Name
	}
	if patch.Description != nil {
		group.Description = *patch.Description
		updates["description"] = group.Description
	}
	if patch.Visibility != nil {
		group.Visibility = *patch.Visibility
		updates["visibility"] = group.Visibility
	}
	if err := validate(group); err != nil {
		return group, err
	}
	if patch.Photo != nil {
		url, err := s.media.Upload(ctx, *patch.Photo)
		if err != nil {
			return group, err
		}
		updates["photo"] = url
	}

	err = store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		locked, err := s.lockAsAdmin(tx, actorID, groupID, "Only the group admin can update the group")
		if err != nil {
			return err
		}
		if err := tx.Model(&locked).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update group")
		}
		return errors.Wrap(tx.First(&group, groupID).Error, "reload group")
	})
	return group, err
}

// ListGroups returns the groups actor belongs to
func (s *Service) ListGroups(ctx context.Context, actorID uint) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.group_id = groups.id AND user_groups.user_id = ?", actorID).
		Order("groups.id").
		Find(&groups).Error
	return groups, errors.Wrap(err, "list groups")
}

// ExploreGroups returns public groups actor does not belong to
func (s *Service) ExploreGroups(ctx context.Context, actorID uint) ([]models.Group, error) {
	db := s.db.WithContext(ctx)
	joined := db.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", actorID)

	var groups []models.Group
	err := db.Where("visibility = ?", models.VisibilityPublic).
		Where("id NOT IN (?)", joined).
		Order("id").
		Find(&groups).Error
	return groups, errors.Wrap(err, "explore groups")
}

// GetGroup returns a group and its member ids. Only members can see it.
func (s *Service) GetGroup(ctx context.Context, actorID, groupID uint) (models.Group, []uint, error) {
	db := s.db.WithContext(ctx)
	group, err := store.FindGroup(db, groupID)
	if err != nil {
		return group, nil, err
	}
	memberIDs, err := s.ListMembers(ctx, actorID, groupID)
	return group, memberIDs, err
}

// ListMembers returns the member ids of a group actor belongs to
func (s *Service) ListMembers(ctx context.Context, actorID, groupID uint) ([]uint, error) {
	db := s.db.WithContext(ctx)
	if _, err := store.FindGroup(db, groupID); err != nil {
		return nil, err
	}
	member, err := store.IsMember(db, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("You are not a member of this group")
	}
	return store.MemberIDs(db, groupID)
}

// ListInvites returns pending invites addressed to actor
func (s *Service) ListInvites(ctx context.Context, actorID uint) ([]models.GroupInvite, error) {
	var invites []models.GroupInvite
	err := s.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", actorID, models.StatusPending).
		Order("created_at, id").
		Find(&invites).Error
	return invites, errors.Wrap(err, "list invites")
}

func (s *Service) lockAsAdmin(tx *gorm.DB, actorID, groupID uint, denied string) (models.Group, error) {
	group, err := store.LockGroup(tx, groupID)
	if err != nil {
		return group, err
	}
	if group.AdminID != actorID {
		return group, apperr.Forbidden("%s", denied)
	}
	return group, nil
}

// resolveInvites marks the user's pending invites to the group accepted once
// they have become a member by another route.
func resolveInvites(tx *gorm.DB, groupID, userID uint) error {
	err := tx.Model(&models.GroupInvite{}).
		Where("group_id = ? AND receiver_id = ? AND status = ?", groupID, userID, models.StatusPending).
		Update("status", models.StatusAccepted).Error
	return errors.Wrap(err, "resolve pending invites")
}

func validate(group models.Group) error {
	if group.Name == "" {
		return apperr.Validation("Group name is required")
	}
	if len(group.Description) > MaxDescriptionLength {
		return apperr.Validation("Description must be at most %d characters", MaxDescriptionLength)
	}
	if !group.Visibility.Valid() {
		return apperr.Validation("Visibility must be public or private")
	}
	return nil
}
