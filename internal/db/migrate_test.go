package db

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigrations(t *testing.T) map[string]string {
	t.Helper()
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	out := make(map[string]string, len(names))
	for _, name := range names {
		raw, err := fs.ReadFile(migrationsFS, name)
		require.NoError(t, err)
		out[name] = string(raw)
	}
	return out
}

func TestMigrations_HaveUpAndDown(t *testing.T) {
	for name, body := range readMigrations(t) {
		assert.Contains(t, body, "-- +goose Up", name)
		assert.Contains(t, body, "-- +goose Down", name)
		assert.Equal(t,
			strings.Count(body, "-- +goose StatementBegin"),
			strings.Count(body, "-- +goose StatementEnd"), name)
	}
}

// The latest definition of profiles_notify_changes must only fire when a
// relayed field changes, so quota counter updates stay off the relay.
func TestMigrations_ProfileTriggerIgnoresCounters(t *testing.T) {
	migrations := readMigrations(t)
	body := migrations["migrations/00002_profile_trigger_visible_fields.sql"]
	require.NotEmpty(t, body)

	up := body[:strings.Index(body, "-- +goose Down")]
	create := regexp.MustCompile(`(?s)CREATE TRIGGER profiles_notify_changes.*?;`).FindString(up)
	require.NotEmpty(t, create)
	assert.Contains(t, create, "IS DISTINCT FROM")
	for _, col := range []string{"name", "bio", "location", "photos", "role"} {
		assert.Contains(t, create, "OLD."+col)
		assert.Contains(t, create, "NEW."+col)
	}
	assert.NotContains(t, create, "daily_")
}
