package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workoutJSON = `{
  "id": "w-1",
  "title": "Push Day",
  "start_time": "2024-03-01T10:00:00Z",
  "end_time": "2024-03-01T11:00:00Z",
  "exercises": [
    {"title": "Bench Press", "sets": [
      {"index": 0, "type": "normal", "reps": 8, "weight_kg": 80},
      {"index": 1, "type": "normal", "reps": 8, "weight_kg": 80}
    ]}
  ]
}`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestEncodeThenInspect verifies a workout file round-trips through the
// encode and inspect commands.
func TestEncodeThenInspect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "workout.json")
	require.NoError(t, os.WriteFile(in, []byte(workoutJSON), 0o600))

	out, err := execute(t, "encode", "-o", dir, in)
	require.NoError(t, err)
	fitPath := filepath.Join(dir, "hevy_strength_workout_20240301_100000.fit")
	assert.Equal(t, fitPath, strings.TrimSpace(out))
	require.FileExists(t, fitPath)

	out, err = execute(t, "inspect", fitPath)
	require.NoError(t, err)
	assert.Contains(t, out, "file_id")
	assert.Contains(t, out, "session start=")
	assert.Contains(t, out, "elapsed=1h0m0s")
}

// TestEncodePage verifies a saved API page encodes every workout in it.
func TestEncodePage(t *testing.T) {
	dir := t.TempDir()
	second := strings.NewReplacer(`"w-1"`, `"w-2"`, "2024-03-01", "2024-03-02").Replace(workoutJSON)
	page := `{"page": 1, "page_count": 1, "workouts": [` + workoutJSON + `,` + second + `]}`
	in := filepath.Join(dir, "page.json")
	require.NoError(t, os.WriteFile(in, []byte(page), 0o600))

	out, err := execute(t, "encode", "--output", dir, in)
	require.NoError(t, err)
	assert.Len(t, strings.Fields(out), 2)
	assert.FileExists(t, filepath.Join(dir, "hevy_strength_workout_20240302_100000.fit"))
}

// TestEncodeBadWorkout verifies an unparsable workout fails the command
// without stopping the others.
func TestEncodeBadWorkout(t *testing.T) {
	dir := t.TempDir()
	bad := strings.Replace(workoutJSON, "2024-03-01T10:00:00Z", "yesterday", 1)
	page := `{"workouts": [` + bad + `,` + workoutJSON + `]}`
	in := filepath.Join(dir, "page.json")
	require.NoError(t, os.WriteFile(in, []byte(page), 0o600))

	out, err := execute(t, "encode", "-o", dir, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 workout(s)")
	assert.Len(t, strings.Fields(out), 1)
}

// TestInspectRejectsGarbage verifies a non-FIT file is reported as such.
func TestInspectRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.fit")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a fit file"), 0o600))

	_, err := execute(t, "inspect", path)
	require.Error(t, err)
}

// TestVersion verifies the version template.
func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "hevysync "+Version+"\n", out)
}

// TestStatusAndResetWithoutState verifies status and reset work against an
// empty state directory.
func TestStatusAndResetWithoutState(t *testing.T) {
	stateDir := t.TempDir()
	t.Setenv("HEVYSYNC_HEVY_API_KEY", "test-key")
	t.Setenv("HEVYSYNC_SYNC_STATE_DIR", stateDir)
	envFile := filepath.Join(stateDir, "none.env")

	out, err := execute(t, "status", "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Watermark:")
	assert.Contains(t, out, "none")
	assert.Contains(t, out, "never")

	require.NoError(t, os.WriteFile(filepath.Join(stateDir, watermarkFile), []byte("2024-03-01T10:00:00Z\n"), 0o600))
	out, err = execute(t, "status", "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-01T10:00:00Z")

	_, err = execute(t, "reset", "--env-file", envFile)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(stateDir, watermarkFile))
}
