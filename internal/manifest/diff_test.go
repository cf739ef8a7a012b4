package manifest

import (
	"context"
	"testing"

	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/internal/recurrence"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/internal/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestCompareProducesCreatesUpdatesUnmanaged(t *testing.T) {
	desired := map[string]ProjectSpec{
		"new": {Name: "new"},
		"shared": {
			Name:      "shared",
			Schedules: []ScheduleSpec{{Name: "s", Expression: "* * * * *", Timezone: "UTC"}},
		},
		"same": {Name: "same", Env: map[string]string{}},
	}
	actual := map[string]ProjectSpec{
		"shared": {
			Name:      "shared",
			Schedules: []ScheduleSpec{{Name: "s", Expression: "0 * * * *", Timezone: "UTC"}},
		},
		"same":  {Name: "same"},
		"stale": {Name: "stale"},
	}

	diff := Compare(desired, actual)

	require.Len(t, diff.Creates, 1)
	require.Equal(t, "new", diff.Creates[0].Name)

	require.Len(t, diff.Unmanaged, 1)
	require.Equal(t, "stale", diff.Unmanaged[0].Name)

	require.Len(t, diff.Updates, 1)
	require.Equal(t, "shared", diff.Updates[0].Name)
	require.Contains(t, diff.Updates[0].Diff, "0 * * * *")
	require.False(t, diff.Empty())
}

func TestAppliedStateMatchesDocument(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutil.OpenTestDB(t))

	docs, err := Parse([]byte(etlManifest), "etl.yaml")
	require.NoError(t, err)

	p := &models.Project{
		Name:            "etl",
		SourceType:      models.SourceTypeLocal,
		SourcePath:      "/srv/etl",
		MainScript:      "main.py",
		Arguments:       "--since yesterday",
		EnvironmentType: models.EnvironmentTypeVenvPip,
		Env:             datatypes.JSONMap{"STAGE": "prod"},
	}
	require.NoError(t, st.CreateProject(ctx, p))
	require.NoError(t, st.CreateSchedule(ctx, &models.Schedule{
		Name: "weekdays", ProjectID: p.ID, Kind: models.ScheduleKindWeekly,
		CronExpression: "30 9 * * MON,WED,FRI", TimeOfDay: "09:30", Weekdays: "MON,WED,FRI",
	}))
	require.NoError(t, st.CreateSchedule(ctx, &models.Schedule{
		Name: "nightly", ProjectID: p.ID, CronExpression: "0 2 * * *", Timezone: "Europe/Berlin",
	}))

	desired, err := DesiredSpecs(docs)
	require.NoError(t, err)
	actual, err := CurrentSpecs(ctx, st)
	require.NoError(t, err)

	diff := Compare(desired, actual)
	require.True(t, diff.Empty(), "%+v", diff.Updates)
}

func TestDesiredSpecsSurfacesCompileErrors(t *testing.T) {
	doc := Document{
		APIVersion: APIVersion,
		Kind:       KindProject,
		Project:    Project{Name: "x", MainScript: "x.py"},
		Schedules:  []Schedule{{Name: "bad", TimeOfDay: "25:00", Weekdays: []string{"MON"}}},
	}
	_, err := DesiredSpecs([]Document{doc})
	require.ErrorIs(t, err, recurrence.ErrInvalidRecurrence)
}
