package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
)

func setupNotificationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	notifications := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  order_id TEXT,
  read_at DATETIME,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(notifications).Error)
	return db
}

func createNotification(t *testing.T, db *gorm.DB, userID uuid.UUID, title string, created time.Time, readAt *time.Time) *models.Notification {
	t.Helper()

	notification := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      enums.NotificationTypeOrderStatus,
		Title:     title,
		Message:   "order update",
		ReadAt:    readAt,
		CreatedAt: created,
	}
	require.NoError(t, db.Create(notification).Error)
	return notification
}

func TestRepositoryList_pagination(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	createNotification(t, db, userID, "oldest", now.Add(-2*time.Hour), nil)
	createNotification(t, db, userID, "middle", now.Add(-time.Hour), nil)
	createNotification(t, db, userID, "newest", now, nil)
	createNotification(t, db, uuid.New(), "other user", now, nil)

	list, next, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, next)
	assert.Equal(t, "newest", list[0].Title)
	assert.Equal(t, "middle", list[1].Title)

	second, next, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "oldest", second[0].Title)
	assert.Nil(t, next)
}

func TestRepositoryList_unreadOnly(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	read := now.Add(-time.Minute)
	createNotification(t, db, userID, "seen", now.Add(-time.Hour), &read)
	createNotification(t, db, userID, "unseen", now, nil)

	list, next, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "unseen", list[0].Title)
	assert.Nil(t, next)
	assert.Nil(t, list[0].ReadAt)
}

func TestRepositoryMarkRead(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	notification := createNotification(t, db, userID, "pending", now.Add(-time.Hour), nil)

	mark, err := repo.MarkRead(context.Background(), userID, notification.ID, now)
	require.NoError(t, err)
	assert.True(t, mark.Found)
	assert.True(t, mark.Updated)

	// marking again finds the row but changes nothing
	mark, err = repo.MarkRead(context.Background(), userID, notification.ID, now)
	require.NoError(t, err)
	assert.True(t, mark.Found)
	assert.False(t, mark.Updated)

	// another user's notification stays invisible
	mark, err = repo.MarkRead(context.Background(), uuid.New(), notification.ID, now)
	require.NoError(t, err)
	assert.False(t, mark.Found)
	assert.False(t, mark.Updated)

	var stored models.Notification
	require.NoError(t, db.Where("id = ?", notification.ID).First(&stored).Error)
	require.NotNil(t, stored.ReadAt)
}

func TestRepositoryMarkAllRead(t *testing.T) {
	db := setupNotificationsTestDB(t)
	repo := NewRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	read := now.Add(-time.Minute)
	createNotification(t, db, userID, "first", now.Add(-2*time.Hour), nil)
	createNotification(t, db, userID, "second", now.Add(-time.Hour), nil)
	createNotification(t, db, userID, "already read", now.Add(-time.Hour), &read)
	createNotification(t, db, uuid.New(), "someone else", now, nil)

	updated, err := repo.MarkAllRead(context.Background(), userID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	list, _, err := repo.List(context.Background(), listNotificationsParams{UserID: userID, Limit: 10, UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, list)
}
