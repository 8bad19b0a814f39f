package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/soulmate-hub/internal/db"
	svcErr "github.com/oggyb/soulmate-hub/internal/errors"
	"github.com/oggyb/soulmate-hub/internal/repository"
	"github.com/oggyb/soulmate-hub/internal/testutil"
)

func TestSwipeCreate_RejectsDuplicatePair(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	repo := repository.NewSwipeRepository(dbase)
	a, b := uuid.New(), uuid.New()

	require.NoError(t, repo.Create(ctx, &db.Swipe{UserID: a, TargetUserID: b, Direction: db.DirectionRight}))

	// second attempt in the other direction still counts as a duplicate
	err := repo.Create(ctx, &db.Swipe{UserID: a, TargetUserID: b, Direction: db.DirectionLeft})
	assert.ErrorIs(t, err, svcErr.ErrDuplicateSwipe)

	var count int64
	require.NoError(t, dbase.Model(&db.Swipe{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	s, err := repo.Get(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, db.DirectionRight, s.Direction)
}

func TestSwipeCreate_ConcurrentDoubleSubmit(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	repo := repository.NewSwipeRepository(dbase)
	a, b := uuid.New(), uuid.New()

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.Create(ctx, &db.Swipe{UserID: a, TargetUserID: b, Direction: db.DirectionRight})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, svcErr.ErrDuplicateSwipe)
	}
	assert.Equal(t, 1, succeeded)

	var count int64
	require.NoError(t, dbase.Model(&db.Swipe{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMatchEnsure_IdempotentAndOrderIndependent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(testutil.NewDB(t))
	a, b := uuid.New(), uuid.New()

	m1, created, err := repo.Ensure(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, created)

	m2, created, err := repo.Ensure(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m1.ID, m2.ID)

	lo, hi := db.CanonicalPair(a, b)
	assert.Equal(t, lo, m2.User1ID)
	assert.Equal(t, hi, m2.User2ID)

	ok, err := repo.Exists(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, ok)

	partners, err := repo.PartnerIDs(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, partners)
}

func TestSwipeMutualWithoutMatch(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	swipes := repository.NewSwipeRepository(dbase)
	matches := repository.NewMatchRepository(dbase)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	for _, s := range []db.Swipe{
		{UserID: a, TargetUserID: b, Direction: db.DirectionRight},
		{UserID: b, TargetUserID: a, Direction: db.DirectionRight},
		{UserID: a, TargetUserID: c, Direction: db.DirectionRight},
		{UserID: c, TargetUserID: a, Direction: db.DirectionLeft},
	} {
		s := s
		require.NoError(t, swipes.Create(ctx, &s))
	}

	pairs, err := swipes.MutualWithoutMatch(ctx, 100)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, []uuid.UUID{pairs[0].UserA, pairs[0].UserB})

	_, _, err = matches.Ensure(ctx, a, b)
	require.NoError(t, err)

	pairs, err = swipes.MutualWithoutMatch(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestNotificationMarkRead_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepository(testutil.NewDB(t))
	owner := uuid.New()

	created := time.Now().UTC().Truncate(time.Microsecond)
	n := db.Notification{UserID: owner, Type: db.NotificationLike, Title: "t", Message: "m", CreatedAt: created}
	require.NoError(t, repo.Create(ctx, &n))

	// a clock behind created_at must not produce read_at < created_at
	changed, err := repo.MarkRead(ctx, n.ID, owner, created.Add(-time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)

	rows, _, err := repo.List(ctx, owner, "", 10, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ReadAt)
	first := *rows[0].ReadAt
	assert.False(t, first.Before(rows[0].CreatedAt))

	changed, err = repo.MarkRead(ctx, n.ID, owner, created.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	rows, _, err = repo.List(ctx, owner, "", 10, false)
	require.NoError(t, err)
	assert.True(t, first.Equal(*rows[0].ReadAt))

	_, err = repo.MarkRead(ctx, n.ID, uuid.New(), time.Now())
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestNotificationListPagination(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewNotificationRepository(testutil.NewDB(t))
	owner := uuid.New()

	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 5; i++ {
		n := db.Notification{
			UserID: owner, Type: db.NotificationMessage, Title: "t", Message: "m",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, repo.Create(ctx, &n))
	}

	seen := map[uuid.UUID]bool{}
	token := ""
	pages := 0
	for {
		rows, next, err := repo.List(ctx, owner, token, 2, false)
		require.NoError(t, err)
		for _, r := range rows {
			assert.False(t, seen[r.ID], "duplicate across pages")
			seen[r.ID] = true
		}
		pages++
		if next == nil {
			break
		}
		token = *next
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 3, pages)

	_, _, err := repo.List(ctx, owner, "%%%", 2, false)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestProfileConsumeQuota(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	repo := repository.NewProfileRepository(dbase)
	p := testutil.CreateProfile(t, dbase, "Quota", db.RoleRegistered)
	now := time.Now().UTC()

	require.NoError(t, repo.ConsumeQuota(ctx, p.ID, repository.QuotaSuperLikes, 1, now))
	assert.ErrorIs(t, repo.ConsumeQuota(ctx, p.ID, repository.QuotaSuperLikes, 1, now), svcErr.ErrQuotaExceeded)

	// next UTC day resets lazily
	require.NoError(t, repo.ConsumeQuota(ctx, p.ID, repository.QuotaSuperLikes, 1, now.Add(24*time.Hour)))

	// unlimited never runs out
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.ConsumeQuota(ctx, p.ID, repository.QuotaLikes, -1, now.Add(24*time.Hour)))
	}
}

func TestProfileDiscoverExcludesSwipedAndBanned(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	repo := repository.NewProfileRepository(dbase)
	swipes := repository.NewSwipeRepository(dbase)

	me := testutil.CreateProfile(t, dbase, "Me", db.RoleRegistered)
	seen := testutil.CreateProfile(t, dbase, "Seen", db.RoleRegistered)
	banned := testutil.CreateProfile(t, dbase, "Banned", db.RoleRegistered)
	fresh := testutil.CreateProfile(t, dbase, "Fresh", db.RoleRegistered)

	require.NoError(t, swipes.Create(ctx, &db.Swipe{UserID: me.ID, TargetUserID: seen.ID, Direction: db.DirectionLeft}))
	reason := "spam"
	require.NoError(t, repo.SetBan(ctx, banned.ID, true, &reason))

	rows, err := repo.Discover(ctx, me.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, fresh.ID, rows[0].ID)
}

func TestProfileDeleteCascades(t *testing.T) {
	ctx := context.Background()
	dbase := testutil.NewDB(t)
	repo := repository.NewProfileRepository(dbase)
	a := testutil.CreateProfile(t, dbase, "A", db.RoleRegistered)
	b := testutil.CreateProfile(t, dbase, "B", db.RoleRegistered)

	require.NoError(t, repository.NewSwipeRepository(dbase).Create(ctx, &db.Swipe{UserID: a.ID, TargetUserID: b.ID, Direction: db.DirectionRight}))
	_, _, err := repository.NewMatchRepository(dbase).Ensure(ctx, a.ID, b.ID)
	require.NoError(t, err)
	conv, _, err := repository.NewConversationRepository(dbase).GetOrCreate(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, repository.NewConversationRepository(dbase).CreateMessage(ctx, &db.Message{ConversationID: conv.ID, SenderID: a.ID, Content: "hi"}))

	require.NoError(t, repo.Delete(ctx, a.ID))

	for _, model := range []any{&db.Swipe{}, &db.Match{}, &db.Conversation{}, &db.Message{}} {
		var count int64
		require.NoError(t, dbase.Model(model).Count(&count).Error)
		assert.Zero(t, count)
	}
	_, err = repo.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), svcErr.ErrNotFound)
}

func TestPermissionReplace(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPermissionRepository(testutil.NewDB(t))
	mod, admin := uuid.New(), uuid.New()

	require.NoError(t, repo.Replace(ctx, mod, []string{"view_reports", "ban_users"}, admin))
	perms, err := repo.List(ctx, mod)
	require.NoError(t, err)
	assert.Equal(t, []string{"ban_users", "view_reports"}, perms)

	require.NoError(t, repo.Replace(ctx, mod, []string{"manage_content"}, admin))
	perms, err = repo.List(ctx, mod)
	require.NoError(t, err)
	assert.Equal(t, []string{"manage_content"}, perms)

	ok, err := repo.Has(ctx, mod, "ban_users")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProfileViewRecord(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewProfileViewRepository(testutil.NewDB(t))
	viewer, viewed := uuid.New(), uuid.New()
	now := time.Now().UTC()

	first, err := repo.Record(ctx, viewer, viewed, now)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = repo.Record(ctx, viewer, viewed, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, first)

	guests, err := repo.Guests(ctx, viewed, 10)
	require.NoError(t, err)
	require.Len(t, guests, 1)
	assert.Equal(t, 2, guests[0].ViewCount)
}

func TestAccountCreateConflict(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(testutil.NewDB(t))

	require.NoError(t, repo.Create(ctx, &db.AuthAccount{ID: uuid.New(), Email: "Ann@Example.com", PasswordHash: "x"}))
	err := repo.Create(ctx, &db.AuthAccount{ID: uuid.New(), Email: "ann@example.com", PasswordHash: "y"})
	assert.ErrorIs(t, err, svcErr.ErrConflict)

	a, err := repo.GetByEmail(ctx, " ANN@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "x", a.PasswordHash)
}
