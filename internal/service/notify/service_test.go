package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/soulmate-hub/internal/app"
	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/service/notify"
	"github.com/oggyb/soulmate-hub/internal/testutil"
)

func setup(t *testing.T) (*notify.Service, *app.AppContext) {
	t.Helper()
	appCtx := testutil.NewAppContext(t)
	return notify.NewService(appCtx), appCtx
}

func decodeData(t *testing.T, n *db.Notification) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(n.Data, &out))
	return out
}

func TestEmit_DenormalizesRelatedUser(t *testing.T) {
	svc, appCtx := setup(t)
	ctx := context.Background()
	ann := testutil.CreateProfile(t, appCtx.DB, "Ann", db.RoleRegistered)
	bob := testutil.CreateProfile(t, appCtx.DB, "Bob", db.RoleRegistered)
	matchID := uuid.New()

	n, err := svc.Emit(ctx, notify.Event{Type: db.NotificationMatch, Recipient: ann.ID, RelatedUser: &bob.ID, MatchID: &matchID})
	require.NoError(t, err)
	assert.Equal(t, "matchNotification", n.Title)
	assert.Equal(t, &matchID, n.RelatedMatchID)

	data := decodeData(t, n)
	assert.Equal(t, "Bob", data["matchedUserName"])
	assert.Equal(t, matchID.String(), data["matchId"])

	// renaming later does not touch the stored copy
	require.NoError(t, appCtx.DB.Model(&db.Profile{}).Where("id = ?", bob.ID).Update("name", "Robert").Error)
	page, err := svc.List(ctx, ann.ID, "", 10, false)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Bob", decodeData(t, &page.Items[0].Notification)["matchedUserName"])
	assert.Equal(t, "Robert", page.Items[0].RelatedUser.Name)
}

func TestEmit_MissingRelatedProfileSkips(t *testing.T) {
	svc, appCtx := setup(t)
	ann := testutil.CreateProfile(t, appCtx.DB, "Ann", db.RoleRegistered)
	ghost := uuid.New()

	_, err := svc.Emit(context.Background(), notify.Event{Type: db.NotificationLike, Recipient: ann.ID, RelatedUser: &ghost})
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	var count int64
	require.NoError(t, appCtx.DB.Model(&db.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmit_ProfileViewOnlyForGoldAndAbove(t *testing.T) {
	svc, appCtx := setup(t)
	ctx := context.Background()
	viewer := testutil.CreateProfile(t, appCtx.DB, "Viewer", db.RoleRegistered)
	silver := testutil.CreateProfile(t, appCtx.DB, "Silver", db.RoleSilver)
	gold := testutil.CreateProfile(t, appCtx.DB, "Gold", db.RoleGold)

	n, err := svc.Emit(ctx, notify.Event{Type: db.NotificationProfileView, Recipient: silver.ID, RelatedUser: &viewer.ID})
	require.NoError(t, err)
	assert.Nil(t, n)

	n, err = svc.Emit(ctx, notify.Event{Type: db.NotificationProfileView, Recipient: gold.ID, RelatedUser: &viewer.ID})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "Viewer", decodeData(t, n)["viewerName"])
}

func TestEmit_Validation(t *testing.T) {
	svc, appCtx := setup(t)
	ann := testutil.CreateProfile(t, appCtx.DB, "Ann", db.RoleRegistered)

	_, err := svc.Emit(context.Background(), notify.Event{Type: "poke", Recipient: ann.ID})
	assert.ErrorIs(t, err, svcErr.ErrValidation)

	_, err = svc.Emit(context.Background(), notify.Event{Type: db.NotificationLike, Recipient: ann.ID})
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestUnreadCount_CacheFollowsWrites(t *testing.T) {
	svc, appCtx := setup(t)
	ctx := context.Background()
	ann := testutil.CreateProfile(t, appCtx.DB, "Ann", db.RoleRegistered)
	bob := testutil.CreateProfile(t, appCtx.DB, "Bob", db.RoleRegistered)

	first, err := svc.Emit(ctx, notify.Event{Type: db.NotificationLike, Recipient: ann.ID, RelatedUser: &bob.ID})
	require.NoError(t, err)

	n, err := svc.UnreadCount(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// counter is now cached and adjusted in place
	_, err = svc.Emit(ctx, notify.Event{Type: db.NotificationSuperLike, Recipient: ann.ID, RelatedUser: &bob.ID})
	require.NoError(t, err)
	cached, ok, err := appCtx.RedisCache.GetCounter(ctx, appCtx.RedisCache.KeyForUnread(ann.ID))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), cached)

	require.NoError(t, svc.MarkRead(ctx, first.ID, ann.ID))
	require.NoError(t, svc.MarkRead(ctx, first.ID, ann.ID))
	n, err = svc.UnreadCount(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	marked, err := svc.MarkAllRead(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)
	n, err = svc.UnreadCount(ctx, ann.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkRead_OnlyRecipient(t *testing.T) {
	svc, appCtx := setup(t)
	ctx := context.Background()
	ann := testutil.CreateProfile(t, appCtx.DB, "Ann", db.RoleRegistered)
	bob := testutil.CreateProfile(t, appCtx.DB, "Bob", db.RoleRegistered)

	n, err := svc.Emit(ctx, notify.Event{Type: db.NotificationLike, Recipient: ann.ID, RelatedUser: &bob.ID})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MarkRead(ctx, n.ID, bob.ID), svcErr.ErrNotFound)

	var stored db.Notification
	require.NoError(t, appCtx.DB.First(&stored, "id = ?", n.ID).Error)
	assert.False(t, stored.IsRead)
}

func TestDeleteForRewind(t *testing.T) {
	svc, appCtx := setup(t)
	ctx := context.Background()
	ann := testutil.CreateProfile(t, appCtx.DB, "Ann", db.RoleRegistered)
	bob := testutil.CreateProfile(t, appCtx.DB, "Bob", db.RoleRegistered)
	matchID := uuid.New()

	_, err := svc.Emit(ctx, notify.Event{Type: db.NotificationSuperLike, Recipient: bob.ID, RelatedUser: &ann.ID})
	require.NoError(t, err)
	_, err = svc.Emit(ctx, notify.Event{Type: db.NotificationMatch, Recipient: ann.ID, RelatedUser: &bob.ID, MatchID: &matchID})
	require.NoError(t, err)
	_, err = svc.Emit(ctx, notify.Event{Type: db.NotificationMatch, Recipient: bob.ID, RelatedUser: &ann.ID, MatchID: &matchID})
	require.NoError(t, err)
	// unrelated: bob liked ann earlier
	_, err = svc.Emit(ctx, notify.Event{Type: db.NotificationLike, Recipient: ann.ID, RelatedUser: &bob.ID})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForRewind(ctx, ann.ID, bob.ID, &matchID))

	var left []db.Notification
	require.NoError(t, appCtx.DB.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, db.NotificationLike, left[0].Type)
	assert.Equal(t, ann.ID, left[0].UserID)
}

func TestCleanup_RemovesOldReadOnly(t *testing.T) {
	svc, appCtx := setup(t)
	ctx := context.Background()
	ann := testutil.CreateProfile(t, appCtx.DB, "Ann", db.RoleRegistered)
	old := db.Now().Add(-40 * 24 * time.Hour)

	rows := []db.Notification{
		{UserID: ann.ID, Type: db.NotificationPhotoApproved, Title: "t", Message: "m", IsRead: true, CreatedAt: old},
		{UserID: ann.ID, Type: db.NotificationPhotoApproved, Title: "t", Message: "m", IsRead: false, CreatedAt: old},
		{UserID: ann.ID, Type: db.NotificationPhotoApproved, Title: "t", Message: "m", IsRead: true},
	}
	require.NoError(t, appCtx.DB.Create(&rows).Error)

	n, err := svc.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNotifyExpiring_OncePerDay(t *testing.T) {
	svc, appCtx := setup(t)
	ctx := context.Background()
	gold := testutil.CreateProfile(t, appCtx.DB, "Gold", db.RoleGold)
	require.NoError(t, appCtx.DB.Model(&db.Profile{}).Where("id = ?", gold.ID).Updates(map[string]any{
		"subscription_status":     "active",
		"subscription_expires_at": db.Now().Add(50 * time.Hour),
	}).Error)

	sent, err := svc.NotifyExpiring(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	sent, err = svc.NotifyExpiring(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, sent)

	page, err := svc.List(ctx, gold.ID, "", 10, true)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 3, decodeData(t, &page.Items[0].Notification)["daysLeft"])
}
