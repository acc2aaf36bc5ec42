package watch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chia-network/chia-gaming-go/types"
	"github.com/chia-network/chia-gaming-go/watch"
)

func TestRegisterIsIdempotentByCoinID(t *testing.T) {
	a := watch.New()
	coinID := types.HashBytes([]byte("coin"))
	a.Register(coinID, 5, "first")
	a.Register(coinID, 999, "second") // ignored: already registered

	present := map[types.Hash]struct{}{coinID: {}}
	report := a.Diff(1, present)
	require.Equal(t, []types.Hash{coinID}, report.Created)
}

func TestDiffReportsCreatedDeletedAndTimedOut(t *testing.T) {
	a := watch.New()
	coinID := types.HashBytes([]byte("coin"))
	a.Register(coinID, 3, "game-coin")

	present := map[types.Hash]struct{}{coinID: {}}
	report := a.Diff(1, present)
	require.Equal(t, []types.Hash{coinID}, report.Created)
	require.Empty(t, report.Deleted)
	require.Empty(t, report.TimedOut)

	// Still present, before the deadline (1+3=4): no new events.
	report = a.Diff(2, present)
	require.Empty(t, report.Created)
	require.Empty(t, report.Deleted)
	require.Empty(t, report.TimedOut)

	// Still present, at the deadline: timed out.
	report = a.Diff(4, present)
	require.Equal(t, []types.Hash{coinID}, report.TimedOut)

	// Spent: no longer present.
	report = a.Diff(5, map[types.Hash]struct{}{})
	require.Equal(t, []types.Hash{coinID}, report.Deleted)

	// Once deleted, the entry is gone -- no further events, even if a
	// coin with the same id reappears (it would need re-registering).
	report = a.Diff(6, map[types.Hash]struct{}{coinID: {}})
	require.Empty(t, report.Created)
}

func TestUnregisterStopsFurtherEvents(t *testing.T) {
	a := watch.New()
	coinID := types.HashBytes([]byte("coin"))
	a.Register(coinID, 10, "")
	present := map[types.Hash]struct{}{coinID: {}}
	a.Diff(1, present)

	a.Unregister(coinID)
	report := a.Diff(2, map[types.Hash]struct{}{})
	require.Empty(t, report.Deleted)
}

// TestDiffIsIdempotentAtSameHeight checks that repeating a diff at the
// same height, including height zero, is a no-op.
func TestDiffIsIdempotentAtSameHeight(t *testing.T) {
	a := watch.New()
	coinID := types.HashBytes([]byte("coin"))
	a.Register(coinID, 5, "")
	present := map[types.Hash]struct{}{coinID: {}}

	first := a.Diff(1, present)
	require.Equal(t, []types.Hash{coinID}, first.Created)

	second := a.Diff(1, present)
	require.Empty(t, second.Created)
	require.Empty(t, second.Deleted)
	require.Empty(t, second.TimedOut)
}

func TestDiffIsIdempotentAtHeightZero(t *testing.T) {
	a := watch.New()
	coinID := types.HashBytes([]byte("coin"))
	a.Register(coinID, 5, "")
	present := map[types.Hash]struct{}{coinID: {}}

	first := a.Diff(0, present)
	require.Equal(t, []types.Hash{coinID}, first.Created)

	second := a.Diff(0, present)
	require.Empty(t, second.Created)
	require.Empty(t, second.Deleted)
	require.Empty(t, second.TimedOut)
}
