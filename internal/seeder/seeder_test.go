package seeder_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine/internal/events"
	"vitrine/internal/leads"
	"vitrine/internal/profiles"
	"vitrine/internal/seeder"
	"vitrine/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	ctx := context.Background()
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	s := seeder.NewSeeder(dbManager, logger, 25).WithSeed(42)
	require.NoError(t, s.Run(ctx))

	var sessions, views, samples, leadCount int64
	require.NoError(t, db.Model(&events.VisitorSession{}).Count(&sessions).Error)
	require.NoError(t, db.Model(&events.PageViewEvent{}).Count(&views).Error)
	require.NoError(t, db.Model(&events.PerformanceSample{}).Count(&samples).Error)
	require.NoError(t, db.Model(&leads.Lead{}).Count(&leadCount).Error)

	assert.Equal(t, int64(25), sessions, "one session row per visit")
	assert.GreaterOrEqual(t, views, sessions)
	assert.Equal(t, views, samples, "one performance row per page load")
	assert.Positive(t, leadCount)

	var entries int64
	require.NoError(t, db.Model(&events.PageViewEvent{}).Where("is_entry_page = ?", true).Count(&entries).Error)
	assert.Equal(t, sessions, entries)

	profile, err := profiles.Authenticate(ctx, db, seeder.DefaultAdminEmail, seeder.DefaultAdminPassword)
	require.NoError(t, err)
	assert.True(t, profile.IsAdmin())

	t.Run("rerun keeps a single admin profile", func(t *testing.T) {
		require.NoError(t, seeder.NewSeeder(dbManager, logger, 1).WithSeed(7).Run(ctx))

		var count int64
		require.NoError(t, db.Model(&profiles.Profile{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}
