package models

import "gorm.io/gorm"

// AllModels returns all models for migration
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&UserGroup{},
		&GroupMember{},
		&ConnectionRequest{},
		&GroupInvite{},
		&DirectMessage{},
		&GroupMessage{},
		&GroupMessageRead{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
