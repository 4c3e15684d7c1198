// Package store holds the transactional helpers that keep the two membership
// projections (user_groups and group_members) in step.
package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mikepea/parley/pkg/parley/apperr"
	"github.com/mikepea/parley/pkg/parley/models"
)

// Atomically runs fn inside one transaction. Domain errors returned by fn
// pass through unchanged; any other failure rolls back and is reported as a
// consistency error.
func Atomically(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	err := db.WithContext(ctx).Transaction(fn)
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Consistency(err)
}

// FindUser loads a user by id
func FindUser(tx *gorm.DB, userID uint) (models.User, error) {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user, apperr.NotFound("User not found")
		}
		return user, errors.Wrap(err, "load user")
	}
	return user, nil
}

// FindGroup loads a group by id without locking
func FindGroup(tx *gorm.DB, groupID uint) (models.Group, error) {
	var group models.Group
	if err := tx.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return group, apperr.NotFound("Group not found")
		}
		return group, errors.Wrap(err, "load group")
	}
	return group, nil
}

// LockGroup loads a group and holds a row lock on it until the transaction
// ends. Every membership change takes this lock first so concurrent changes
// to the same group are serialised. SQLite ignores the clause and
// serialises writers itself.
func LockGroup(tx *gorm.DB, groupID uint) (models.Group, error) {
	return FindGroup(tx.Clauses(clause.Locking{Strength: "UPDATE"}), groupID)
}

// IsMember reports whether userID is in the group's member list
func IsMember(tx *gorm.DB, groupID, userID uint) (bool, error) {
	var count int64
	err := tx.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "check membership")
	}
	return count > 0, nil
}

// AddMembership writes both projections for (group, user)
func AddMembership(tx *gorm.DB, groupID, userID uint) error {
	if err := tx.Create(&models.GroupMember{GroupID: groupID, UserID: userID}).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Duplicate("Already a group member")
		}
		return errors.Wrap(err, "insert group member")
	}
	if err := tx.Create(&models.UserGroup{UserID: userID, GroupID: groupID}).Error; err != nil {
		return errors.Wrap(err, "insert user group")
	}
	return nil
}

// RemoveMembership deletes both projections for (group, user). It returns a
// not-found error when the user is not a member, and rolls back if the two
// projections disagree.
func RemoveMembership(tx *gorm.DB, groupID, userID uint) error {
	res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete group member")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("User is not a member of this group")
	}

	res = tx.Where("user_id = ? AND group_id = ?", userID, groupID).Delete(&models.UserGroup{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete user group")
	}
	if res.RowsAffected == 0 {
		return errors.Errorf("user %d missing group %d in its group list", userID, groupID)
	}
	return nil
}

// RemoveAllMemberships clears both projections for every member of a group
func RemoveAllMemberships(tx *gorm.DB, groupID uint) error {
	if err := tx.Where("group_id = ?", groupID).Delete(&models.UserGroup{}).Error; err != nil {
		return errors.Wrap(err, "delete user groups")
	}
	if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMember{}).Error; err != nil {
		return errors.Wrap(err, "delete group members")
	}
	return nil
}

// MemberIDs returns the member list of a group
func MemberIDs(tx *gorm.DB, groupID uint) ([]uint, error) {
	var ids []uint
	err := tx.Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, errors.Wrap(err, "list group members")
}

// GroupIDs returns the group list of a user
func GroupIDs(tx *gorm.DB, userID uint) ([]uint, error) {
	var ids []uint
	err := tx.Model(&models.UserGroup{}).
		Where("user_id = ?", userID).
		Order("group_id").
		Pluck("group_id", &ids).Error
	return ids, errors.Wrap(err, "list user groups")
}
