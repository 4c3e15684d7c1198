// Package messages stores direct and group messages and tracks who has read
// them. New messages are pushed to online recipients through a Notifier.
package messages

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

// Notifier is told about every persisted message
type Notifier interface {
	DirectMessageSent(ctx context.Context, msg models.DirectMessage)
	GroupMessageSent(ctx context.Context, msg models.GroupMessage, memberIDs []uint)
}

// Content is the body of a new message. At least one of Text and Image
// must be set; Image is raw image data for the media store.
type Content struct {
	Text  string
	Image string
}

func (c Content) empty() bool {
	return strings.TrimSpace(c.Text) == "" && c.Image == ""
}

// Service implements sending and reading messages
type Service struct {
	db       *gorm.DB
	media    media.Store
	notifier Notifier
}

// NewService creates a message service
func NewService(db *gorm.DB, media media.Store, notifier Notifier) *Service {
	return &Service{db: db, media: media, notifier: notifier}
}

// SendDirect stores a message from actor to receiver and notifies the
// receiver if they are online.
func (s *Service) SendDirect(ctx context.Context, actorID, receiverID uint, content Content) (models.DirectMessage, error) {
	msg := models.DirectMessage{SenderID: actorID, ReceiverID: receiverID, Text: content.Text}
	if content.empty() {
		return msg, apperr.Validation("Message must have text or an image")
	}
	if actorID == receiverID {
		return msg, apperr.SelfReference("Cannot send a message to yourself")
	}

	db := s.db.WithContext(ctx)
	if _, err := store.FindUser(db, receiverID); err != nil {
		return msg, err
	}

	if content.Image != "" {
		url, err := s.media.Upload(ctx, content.Image)
		if err != nil {
			return msg, err
		}
		msg.Image = url
	}

	if err := db.Create(&msg).Error; err != nil {
		return msg, errors.Wrap(err, "create direct message")
	}

	s.notifier.DirectMessageSent(ctx, msg)
	return msg, nil
}

// FetchThread marks every unread message from peer to actor as read and
// returns the conversation between them, oldest first.
func (s *Service) FetchThread(ctx context.Context, actorID, peerID uint) ([]models.DirectMessage, error) {
	if actorID == peerID {
		return nil, apperr.SelfReference("Cannot fetch a conversation with yourself")
	}

	var thread []models.DirectMessage
	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := store.FindUser(tx, peerID); err != nil {
			return err
		}

		if err := tx.Model(&models.DirectMessage{}).
			Where("sender_id = ? AND receiver_id = ? AND is_read = ?", peerID, actorID, false).
			Update("is_read", true).Error; err != nil {
			return errors.Wrap(err, "mark thread read")
		}

		return errors.Wrap(tx.
			Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
				actorID, peerID, peerID, actorID).
			Order("created_at, id").
			Find(&thread).Error, "load thread")
	})
	return thread, err
}

// UnreadCount returns how many messages from peer actor has not read
func (s *Service) UnreadCount(ctx context.Context, actorID, peerID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.DirectMessage{}).
		Where("sender_id = ? AND receiver_id = ? AND is_read = ?", peerID, actorID, false).
		Count(&count).Error
	return count, errors.Wrap(err, "count unread messages")
}

// SendGroup stores a message in a group actor belongs to and fans it out
// to the other members that are online.
func (s *Service) SendGroup(ctx context.Context, actorID, groupID uint, content Content) (models.GroupMessage, error) {
	msg := models.GroupMessage{SenderID: actorID, GroupID: groupID, Text: content.Text, ReadBy: []uint{}}
	if err := s.requireMember(s.db.WithContext(ctx), actorID, groupID); err != nil {
		return msg, err
	}
	if content.empty() {
		return msg, apperr.Validation("Message must have text or an image")
	}

	if content.Image != "" {
		url, err := s.media.Upload(ctx, content.Image)
		if err != nil {
			return msg, err
		}
		msg.Image = url
	}

	var memberIDs []uint
	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		// Membership can change between the check above and here
		if _, err := store.LockGroup(tx, groupID); err != nil {
			return err
		}
		if err := s.requireMember(tx, actorID, groupID); err != nil {
			return err
		}
		if err := tx.Create(&msg).Error; err != nil {
			return errors.Wrap(err, "create group message")
		}
		var err error
		memberIDs, err = store.MemberIDs(tx, groupID)
		return err
	})
	if err != nil {
		return msg, err
	}

	s.notifier.GroupMessageSent(ctx, msg, memberIDs)
	return msg, nil
}

// FetchGroupThread adds actor to the read set of every message in the
// group and returns the messages, oldest first, with their read sets.
func (s *Service) FetchGroupThread(ctx context.Context, actorID, groupID uint) ([]models.GroupMessage, error) {
	var thread []models.GroupMessage
	err := store.Atomically(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.requireMember(tx, actorID, groupID); err != nil {
			return err
		}

		if err := tx.Where("group_id = ?", groupID).Order("created_at, id").Find(&thread).Error; err != nil {
			return errors.Wrap(err, "load group thread")
		}
		if len(thread) == 0 {
			return nil
		}

		reads := make([]models.GroupMessageRead, len(thread))
		for i, m := range thread {
			reads[i] = models.GroupMessageRead{MessageID: m.ID, UserID: actorID, GroupID: groupID}
		}
		// Existing rows are left alone, so read sets only ever grow
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&reads).Error; err != nil {
			return errors.Wrap(err, "mark group thread read")
		}

		var all []models.GroupMessageRead
		if err := tx.Where("group_id = ?", groupID).Order("message_id, user_id").Find(&all).Error; err != nil {
			return errors.Wrap(err, "load read sets")
		}
		readBy := make(map[uint][]uint, len(thread))
		for _, r := range all {
			readBy[r.MessageID] = append(readBy[r.MessageID], r.UserID)
		}
		for i := range thread {
			thread[i].ReadBy = readBy[thread[i].ID]
			if thread[i].ReadBy == nil {
				thread[i].ReadBy = []uint{}
			}
		}
		return nil
	})
	return thread, err
}

// UnreadGroupCount returns how many messages in the group actor has not
// fetched. Actor's own messages count until actor fetches the thread.
func (s *Service) UnreadGroupCount(ctx context.Context, actorID, groupID uint) (int64, error) {
	db := s.db.WithContext(ctx)
	if err := s.requireMember(db, actorID, groupID); err != nil {
		return 0, err
	}

	read := db.Model(&models.GroupMessageRead{}).Select("message_id").
		Where("group_id = ? AND user_id = ?", groupID, actorID)

	var count int64
	err := db.Model(&models.GroupMessage{}).
		Where("group_id = ?", groupID).
		Where("id NOT IN (?)", read).
		Count(&count).Error
	return count, errors.Wrap(err, "count unread group messages")
}

func (s *Service) requireMember(tx *gorm.DB, actorID, groupID uint) error {
	if _, err := store.FindGroup(tx, groupID); err != nil {
		return err
	}
	member, err := store.IsMember(tx, groupID, actorID)
	if err != nil {
		return err
	}
	if !member {
		return apperr.Forbidden("You are not a member of this group")
	}
	return nil
}
