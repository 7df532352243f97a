package coverage

import (
	"testing"

	"dataexplorer/internal/model"

	"github.com/stretchr/testify/require"
)

func iv(s, e int64) model.Interval { return model.Interval{StartSec: s, EndSec: e} }

func TestUnionMergesOnlyOverlapping(t *testing.T) {
	got := Union([]model.Interval{iv(100, 200), iv(200, 300), iv(50, 90)})
	require.Equal(t, []model.Interval{iv(50, 90), iv(100, 300)}, got)
}

func TestUnionDropsEmpty(t *testing.T) {
	got := Union([]model.Interval{iv(10, 10), iv(5, 4), iv(1, 3)})
	require.Equal(t, []model.Interval{iv(1, 3)}, got)
}

func TestRecordIsIdempotentUnderReunion(t *testing.T) {
	l := New()
	l.Record("A", iv(1000, 2000))
	l.Record("A", iv(1200, 1800))
	require.Equal(t, []model.Interval{iv(1000, 2000)}, l.Snapshot()["A"])
}

func TestGapsEmptyRequest(t *testing.T) {
	l := New()
	require.Empty(t, l.Gaps("A", iv(1000, 1000)))
}

func TestGapsUntrackedTagIsFullGap(t *testing.T) {
	l := New()
	require.Equal(t, []model.Interval{iv(1000, 2000)}, l.Gaps("A", iv(1000, 2000)))
}

func TestGapsFullyCovered(t *testing.T) {
	l := New()
	l.Record("A", iv(1000, 2000))
	require.Empty(t, l.Gaps("A", iv(1200, 1800)))
}

func TestGapsStraddlingTwoCoveredIntervals(t *testing.T) {
	l := New()
	l.Record("A", iv(1000, 1500))
	l.Record("A", iv(1800, 2000))
	require.Equal(t, []model.Interval{iv(1500, 1800)}, l.Gaps("A", iv(1200, 1900)))
}

func TestDrop(t *testing.T) {
	l := New()
	l.Record("A", iv(1000, 2000))
	l.Drop("A")
	require.Equal(t, []model.Interval{iv(1000, 2000)}, l.Gaps("A", iv(1000, 2000)))
}
