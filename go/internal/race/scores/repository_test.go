package scores

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "leaderboard.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestTopEmpty(t *testing.T) {
	repo := openTestRepo(t)

	top, err := repo.Top(Keep)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestAddAndOrder(t *testing.T) {
	repo := openTestRepo(t)
	now := time.Now()

	for _, e := range []Entry{
		{Name: "slow", WPM: 30, Accuracy: 99, RecordedAt: now},
		{Name: "fast", WPM: 90, Accuracy: 91, RecordedAt: now},
		{Name: "mid", WPM: 60, Accuracy: 95, RecordedAt: now},
	} {
		require.NoError(t, repo.Add(e))
	}

	top, err := repo.Top(Keep)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "fast", top[0].Name)
	assert.Equal(t, "mid", top[1].Name)
	assert.Equal(t, "slow", top[2].Name)
}

func TestAccuracyBreaksWPMTies(t *testing.T) {
	repo := openTestRepo(t)
	now := time.Now()

	require.NoError(t, repo.Add(Entry{Name: "sloppy", WPM: 60, Accuracy: 88, RecordedAt: now}))
	require.NoError(t, repo.Add(Entry{Name: "clean", WPM: 60, Accuracy: 99, RecordedAt: now}))

	top, err := repo.Top(Keep)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "clean", top[0].Name)
}

func TestPrunesBeyondKeep(t *testing.T) {
	repo := openTestRepo(t)
	now := time.Now()

	for i := 0; i < Keep+5; i++ {
		require.NoError(t, repo.Add(Entry{
			Name:       fmt.Sprintf("racer-%d", i),
			WPM:        float64(10 + i),
			Accuracy:   95,
			RecordedAt: now,
		}))
	}

	top, err := repo.Top(Keep + 5)
	require.NoError(t, err)
	require.Len(t, top, Keep, "everything below the top ranks is pruned")

	// The weakest survivors are the highest WPMs.
	assert.Equal(t, float64(10+Keep+4), top[0].WPM)
	assert.Equal(t, float64(10+5), top[Keep-1].WPM)
}
