package seeds

import (
	"context"
	"os"
	"strings"
	"testing"

	"event-registration-system/models"
	"event-registration-system/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBundledFixturesIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)

	fh, err := os.Open("events.yaml")
	require.NoError(t, err)
	defer fh.Close()

	f, err := Parse(fh)
	require.NoError(t, err)
	require.Len(t, f.Events, 2)

	res, err := Apply(context.Background(), db, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Categories: 3, Events: 2}, res)

	res, err = Apply(context.Background(), db, f)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)

	assert.EqualValues(t, 2, testutil.Count(t, db, &models.Event{}))
	assert.EqualValues(t, 3, testutil.Count(t, db, &models.Ticket{}))
	assert.EqualValues(t, 4, testutil.Count(t, db, &models.EventCategory{}))

	var ev models.Event
	require.NoError(t, db.Preload("Tickets").Where("title = ?", "Kejuaraan Karate Pelajar Jakarta 2026").First(&ev).Error)
	assert.EqualValues(t, 15000, ev.AdminFee)
	assert.True(t, strings.HasPrefix(ev.Slug, "kejuaraan-karate-pelajar-jakarta-2026-"))
	assert.Len(t, ev.Tickets, 2)
}

func TestApplyUnknownCategory(t *testing.T) {
	db := testutil.NewDB(t)
	f, err := Parse(strings.NewReader(`
events:
  - title: Lomba
    categories: [Missing]
`))
	require.NoError(t, err)

	_, err = Apply(context.Background(), db, f)
	assert.Error(t, err)
	assert.EqualValues(t, 0, testutil.Count(t, db, &models.Event{}))
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("events:\n  - titel: typo\n"))
	assert.Error(t, err)
}
