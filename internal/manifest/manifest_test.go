package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const etlManifest = `apiVersion: pyorchestrator/v1
kind: Project
project:
  name: etl
  source_path: /srv/etl
  main_script: main.py
  arguments: --since yesterday
  environment_type: venv-pip
  env:
    STAGE: prod
schedules:
  - name: nightly
    cron: "0 2 * * *"
    timezone: Europe/Berlin
  - name: weekdays
    time_of_day: "09:30"
    weekdays: [MON, WED, FRI]
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	docs, err := Parse([]byte(etlManifest), "etl.yaml")
	require.NoError(t, err)
	require.Len(t, docs, 1)

	want := Document{
		APIVersion: APIVersion,
		Kind:       KindProject,
		Project: Project{
			Name:            "etl",
			SourcePath:      "/srv/etl",
			MainScript:      "main.py",
			Arguments:       "--since yesterday",
			EnvironmentType: models.EnvironmentTypeVenvPip,
			Env:             map[string]string{"STAGE": "prod"},
		},
		Schedules: []Schedule{
			{Name: "nightly", Cron: "0 2 * * *", Timezone: "Europe/Berlin"},
			{Name: "weekdays", TimeOfDay: "09:30", Weekdays: []string{"MON", "WED", "FRI"}},
		},
		Path: "etl.yaml",
	}
	if diff := cmp.Diff(want, docs[0]); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, models.ScheduleKindCron, docs[0].Schedules[0].ScheduleKind())
	assert.Equal(t, models.ScheduleKindWeekly, docs[0].Schedules[1].ScheduleKind())
	assert.Equal(t, map[string]any{"STAGE": "prod"}, docs[0].Project.EnvMap())
}

func TestParseMultipleDocumentsSkipsBlank(t *testing.T) {
	data := etlManifest + "---\n---\n" + `apiVersion: pyorchestrator/v1
kind: Project
project:
  name: report
  source_path: /srv/report
  main_script: report.py
`
	docs, err := Parse([]byte(data), "all.yaml")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "report", docs[1].Project.Name)
	assert.Nil(t, docs[1].Project.EnvMap())
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"wrong version": "apiVersion: v0\nkind: Project\nproject: {name: a, main_script: a.py}\n",
		"wrong kind":    "apiVersion: pyorchestrator/v1\nkind: Job\nproject: {name: a, main_script: a.py}\n",
		"no name":       "apiVersion: pyorchestrator/v1\nkind: Project\nproject: {main_script: a.py}\n",
		"duplicate schedule": `apiVersion: pyorchestrator/v1
kind: Project
project: {name: a, main_script: a.py}
schedules:
  - {name: s, cron: "* * * * *"}
  - {name: s, cron: "0 * * * *"}
`,
		"both forms": `apiVersion: pyorchestrator/v1
kind: Project
project: {name: a, main_script: a.py}
schedules:
  - {name: s, cron: "* * * * *", time_of_day: "10:00"}
`,
		"unnamed schedule": `apiVersion: pyorchestrator/v1
kind: Project
project: {name: a, main_script: a.py}
schedules:
  - {cron: "* * * * *"}
`,
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data), "bad.yaml")
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}

	_, err := Parse([]byte("project: [unclosed"), "broken.yaml")
	assert.Error(t, err)
}

func TestLoadSelectsByGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "etl.yaml", etlManifest)
	writeFile(t, dir, "nested/deep/report.yml", `apiVersion: pyorchestrator/v1
kind: Project
project: {name: report, source_path: /srv/report, main_script: report.py}
`)
	writeFile(t, dir, "README.md", "not a manifest")
	writeFile(t, dir, ".git/config.yaml", "not: a manifest")

	docs, err := Load([]string{dir}, "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "etl", docs[0].Project.Name)
	assert.Equal(t, "report", docs[1].Project.Name)

	docs, err = Load([]string{dir}, "nested/**/*.yml")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "report", docs[0].Project.Name)
}

func TestLoadExplicitFileAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "etl.yaml", etlManifest)

	// The same file reached twice is read once.
	docs, err := Load([]string{dir, file}, "")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	writeFile(t, dir, "copy.yaml", etlManifest)
	_, err = Load([]string{dir}, "")
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load([]string{filepath.Join(t.TempDir(), "missing")}, "")
	assert.Error(t, err)

	_, err = Load([]string{t.TempDir()}, "[unclosed")
	assert.ErrorIs(t, err, ErrInvalidManifest)
}
