package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/index"
	"lextransition/internal/models"
)

const bnsText = `THE BHARATIYA NYAYA SANHITA, 2023
103. Punishment for murder.—(1) Whoever commits murder shall be punished with death or imprisonment for life, and shall also be liable to fine.
104. Punishment for murder by life-convict.—Whoever, being under sentence of imprisonment for life, commits murder, shall be punished with death or with imprisonment for life.`

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestBuildStatsAndPrune(t *testing.T) {
	snapshots := t.TempDir()
	t.Setenv("LTA_SNAPSHOT_DIR", snapshots)
	t.Setenv("LTA_LOG_LEVEL", "error")

	corpus := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(corpus, "bns.txt"), []byte(bnsText), 0o644))

	out := run(t, "build", corpus, "--concurrency", "2")
	assert.Contains(t, out, "Chunk Statistics:")
	assert.Contains(t, out, "BNS: ")

	store, err := index.NewStore(snapshots, nil)
	require.NoError(t, err)
	snap, err := store.LoadCurrent()
	require.NoError(t, err)
	assert.NotEmpty(t, snap.BySection(models.NewSectionID(models.BNS, "103", ""), 1))

	out = run(t, "stats")
	assert.Contains(t, out, "Current snapshot: "+snap.Version())

	out = run(t, "prune", "--keep", "1")
	assert.Contains(t, out, "Removed 0 snapshot(s)")
}

func TestDatabaseCommandsRequireURL(t *testing.T) {
	t.Setenv("LTA_SNAPSHOT_DIR", t.TempDir())
	t.Setenv("DATABASE_URL", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"acts"})
	assert.ErrorContains(t, root.Execute(), "DATABASE_URL")
}

func TestPrintChunkStatisticsEmpty(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	printChunkStatistics(cmd, nil)
	assert.Equal(t, "No chunks indexed\n", out.String())
}
