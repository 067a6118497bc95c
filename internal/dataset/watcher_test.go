package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/internal/testutil"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	testutil.SkipIfShort(t)
	env := testutil.NewTestEnvironment(t)
	start := testutil.MonthStart(2023, time.January)

	path := testutil.WriteCSV(t, env.TempDir, "sales.csv",
		testutil.MonthlyTransactions("Rifle-X", start, []int{1, 2}))
	store := NewStore(NewCSVSource(path, env.Logger), env.Logger)
	require.NoError(t, store.Reload(env.Context))
	require.Equal(t, []string{"Rifle-X"}, store.Products())

	watcher, err := NewWatcher(store, path, 20*time.Millisecond, env.Logger)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(env.Context))
	defer watcher.Stop()

	txs := append(
		testutil.MonthlyTransactions("Rifle-X", start, []int{1, 2}),
		testutil.MonthlyTransactions("Pistol-Y", start, []int{3})...,
	)
	testutil.WriteCSV(t, env.TempDir, "sales.csv", txs)

	env.WaitForCondition(func() bool {
		return len(store.Products()) == 2
	}, 5*time.Second, "dataset should reload after the file changes")
}
