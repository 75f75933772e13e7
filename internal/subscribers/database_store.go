package subscribers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ChatSubscription is a chat subscribed to notifications.
type ChatSubscription struct {
	ChatID    int64     `gorm:"column:chat_id;primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (ChatSubscription) TableName() string {
	return "chat_subscriptions"
}

// DatabaseStore keeps subscribers in the chat_subscriptions table.
type DatabaseStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDatabaseStore returns a store using db.
func NewDatabaseStore(db *gorm.DB) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("subscribers: database connection required")
	}
	return &DatabaseStore{db: db, clock: time.Now}, nil
}

// Load returns every subscribed chat ordered by id.
func (d *DatabaseStore) Load(ctx context.Context) ([]int64, error) {
	var chatIDs []int64
	if err := d.db.WithContext(ctx).Model(&ChatSubscription{}).Order("chat_id ASC").Pluck("chat_id", &chatIDs).Error; err != nil {
		return nil, err
	}
	return chatIDs, nil
}

// Save replaces the table content with chatIDs, keeping creation time of rows that stay.
func (d *DatabaseStore) Save(ctx context.Context, chatIDs []int64) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(chatIDs) == 0 {
			return tx.Where("1 = 1").Delete(&ChatSubscription{}).Error
		}
		if err := tx.Where("chat_id NOT IN ?", chatIDs).Delete(&ChatSubscription{}).Error; err != nil {
			return err
		}
		var existing []int64
		if err := tx.Model(&ChatSubscription{}).Pluck("chat_id", &existing).Error; err != nil {
			return err
		}
		present := make(map[int64]struct{}, len(existing))
		for _, chatID := range existing {
			present[chatID] = struct{}{}
		}
		now := d.clock().UTC()
		rows := make([]ChatSubscription, 0, len(chatIDs))
		for _, chatID := range chatIDs {
			if _, ok := present[chatID]; ok {
				continue
			}
			present[chatID] = struct{}{}
			rows = append(rows, ChatSubscription{ChatID: chatID, CreatedAt: now})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}
