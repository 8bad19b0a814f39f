package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oggyb/soulmate-hub/internal/db"
	"github.com/oggyb/soulmate-hub/internal/testutil"
)

func TestSeedTestData(t *testing.T) {
	database := testutil.NewDB(t)
	require.NoError(t, db.SeedTestData(database, database))

	var profiles int64
	database.Model(&db.Profile{}).Count(&profiles)
	assert.Equal(t, int64(20), profiles)

	var admin db.Profile
	require.NoError(t, database.First(&admin, "email = ?", "user1@example.com").Error)
	assert.Equal(t, db.RoleAdmin, admin.Role)

	var acct db.AuthAccount
	require.NoError(t, database.First(&acct, "id = ?", admin.ID).Error)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(db.SeedPassword)))

	// every match is backed by two right swipes
	var matches []db.Match
	require.NoError(t, database.Find(&matches).Error)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		var n int64
		database.Model(&db.Swipe{}).
			Where("direction = ? AND ((user_id = ? AND target_user_id = ?) OR (user_id = ? AND target_user_id = ?))",
				db.DirectionRight, m.User1ID, m.User2ID, m.User2ID, m.User1ID).
			Count(&n)
		assert.Equal(t, int64(2), n)
		assert.Less(t, m.User1ID.String(), m.User2ID.String())
	}

	// reseeding starts over
	require.NoError(t, db.SeedTestData(database, database))
	database.Model(&db.Profile{}).Count(&profiles)
	assert.Equal(t, int64(20), profiles)
}

func TestSeedMinimalTestData(t *testing.T) {
	database := testutil.NewDB(t)
	profiles, err := db.SeedMinimalTestData(database)
	require.NoError(t, err)
	require.Len(t, profiles, 3)

	var matches []db.Match
	require.NoError(t, database.Find(&matches).Error)
	require.Len(t, matches, 1)
	a, b := db.CanonicalPair(profiles[0].ID, profiles[1].ID)
	assert.Equal(t, a, matches[0].User1ID)
	assert.Equal(t, b, matches[0].User2ID)

	var messages int64
	database.Model(&db.Message{}).Count(&messages)
	assert.Equal(t, int64(2), messages)
}
