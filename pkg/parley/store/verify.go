package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/mikepea/parley/pkg/parley/models"
)

// Drift is a membership present in only one projection
type Drift struct {
	UserID  uint
	GroupID uint
	Side    string // "user_groups" or "group_members": the table holding the row
}

func (d Drift) String() string {
	return fmt.Sprintf("user %d / group %d only in %s", d.UserID, d.GroupID, d.Side)
}

type pair struct{ userID, groupID uint }

// VerifyProjections compares user_groups with group_members and returns
// every row that has no counterpart.
func VerifyProjections(ctx context.Context, db *gorm.DB) ([]Drift, error) {
	var userSide []models.UserGroup
	if err := db.WithContext(ctx).Find(&userSide).Error; err != nil {
		return nil, errors.Wrap(err, "load user groups")
	}
	var groupSide []models.GroupMember
	if err := db.WithContext(ctx).Find(&groupSide).Error; err != nil {
		return nil, errors.Wrap(err, "load group members")
	}

	members := make(map[pair]bool, len(groupSide))
	for _, m := range groupSide {
		members[pair{m.UserID, m.GroupID}] = true
	}

	var drift []Drift
	seen := make(map[pair]bool, len(userSide))
	for _, ug := range userSide {
		p := pair{ug.UserID, ug.GroupID}
		seen[p] = true
		if !members[p] {
			drift = append(drift, Drift{UserID: ug.UserID, GroupID: ug.GroupID, Side: "user_groups"})
		}
	}
	for _, m := range groupSide {
		if !seen[pair{m.UserID, m.GroupID}] {
			drift = append(drift, Drift{UserID: m.UserID, GroupID: m.GroupID, Side: "group_members"})
		}
	}
	return drift, nil
}
