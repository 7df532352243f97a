package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"dataexplorer/internal/eventbus"
	"dataexplorer/internal/store"
	"dataexplorer/internal/upstream"

	"github.com/stretchr/testify/require"
)

// fakeUpstream serves canned samples per tag, keyed by a test-provided map,
// mimicking the original mock server's /values contract closely enough for
// the planner/executor tests.
type fakeUpstream struct {
	responses map[string][]sampleJSON
}

type sampleJSON struct {
	Date  string
	Value float64
}

func newFakeUpstream(t *testing.T, responses map[string][]sampleJSON) *upstream.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := url.ParseQuery(r.URL.RawQuery)
		tag := q.Get("tag")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(responses[tag])
	}))
	t.Cleanup(srv.Close)
	return upstream.NewClient(srv.URL, time.Second)
}

func iso(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

func newTestEngine(t *testing.T, responses map[string][]sampleJSON) *Engine {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	client := newFakeUpstream(t, responses)
	return New(client, st, 4, nil)
}

func TestScenarioSingleTagColdCache(t *testing.T) {
	e := newTestEngine(t, map[string][]sampleJSON{
		"A": {
			{Date: iso(1000), Value: 10},
			{Date: iso(1500), Value: 20},
			{Date: iso(2000), Value: 30},
		},
	})

	res, err := e.FetchInto(context.Background(), []string{"A"}, 1000, 2000)
	require.NoError(t, err)
	require.True(t, res.NewData)
	require.Equal(t, 3, e.raw.RowCount())

	res2, err := e.FetchInto(context.Background(), []string{"A"}, 1000, 2000)
	require.NoError(t, err)
	require.False(t, res2.NewData)
}

func TestScenarioSecondTagJoins(t *testing.T) {
	e := newTestEngine(t, map[string][]sampleJSON{
		"A": {{Date: iso(1000), Value: 10}, {Date: iso(1500), Value: 20}, {Date: iso(2000), Value: 30}},
		"B": {{Date: iso(1200), Value: 5}, {Date: iso(1800), Value: 7}},
	})

	_, err := e.FetchInto(context.Background(), []string{"A"}, 1000, 2000)
	require.NoError(t, err)
	_, err = e.FetchInto(context.Background(), []string{"A", "B"}, 1000, 2000)
	require.NoError(t, err)

	require.Equal(t, 5, e.raw.RowCount())
	rows := e.raw.Snapshot()
	for _, r := range rows {
		_, hasA := r.Values["A"]
		_, hasB := r.Values["B"]
		require.True(t, hasA)
		require.True(t, hasB)
	}
}

func TestScenarioTagRemovalDropsColumn(t *testing.T) {
	e := newTestEngine(t, map[string][]sampleJSON{
		"A": {{Date: iso(1000), Value: 10}},
		"B": {{Date: iso(1000), Value: 20}},
	})

	_, err := e.FetchInto(context.Background(), []string{"A", "B"}, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, e.raw.Columns(), 2)

	_, err = e.FetchInto(context.Background(), []string{"A"}, 1000, 2000)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, e.raw.Columns())
	require.Equal(t, 1, e.raw.RowCount())
}

func TestBuildWorkingRedrawGate(t *testing.T) {
	e := newTestEngine(t, map[string][]sampleJSON{
		"A": {{Date: iso(1000), Value: 10}},
	})
	_, err := e.FetchInto(context.Background(), []string{"A"}, 1000, 2000)
	require.NoError(t, err)

	_, redraw1, err := e.BuildWorking(0, false)
	require.NoError(t, err)
	require.True(t, redraw1)

	_, redraw2, err := e.BuildWorking(0, false)
	require.NoError(t, err)
	require.False(t, redraw2)
}

func TestEmptyRequestRange(t *testing.T) {
	e := newTestEngine(t, map[string][]sampleJSON{})
	res, err := e.FetchInto(context.Background(), []string{"A"}, 1000, 1000)
	require.NoError(t, err)
	require.False(t, res.NewData)
}

func TestFetchIntoPublishesFetchComplete(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	client := newFakeUpstream(t, map[string][]sampleJSON{
		"A": {{Date: iso(1000), Value: 10}},
	})
	bus := eventbus.New()
	defer bus.Close()
	e := New(client, st, 4, bus)

	received := make(chan eventbus.Event, 1)
	bus.Subscribe("fetch_complete", received)

	res, err := e.FetchInto(context.Background(), []string{"A"}, 1000, 2000)
	require.NoError(t, err)
	require.True(t, res.NewData)

	select {
	case evt := <-received:
		data, ok := evt.Data.(map[string]bool)
		require.True(t, ok)
		require.True(t, data["newData"])
		require.True(t, data["redrawNeeded"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fetch_complete event")
	}
}

func TestBuildWorkingPublishesRedrawNeeded(t *testing.T) {
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	client := newFakeUpstream(t, map[string][]sampleJSON{
		"A": {{Date: iso(1000), Value: 10}},
	})
	bus := eventbus.New()
	defer bus.Close()
	e := New(client, st, 4, bus)

	_, err = e.FetchInto(context.Background(), []string{"A"}, 1000, 2000)
	require.NoError(t, err)

	received := make(chan eventbus.Event, 1)
	bus.Subscribe("redraw_needed", received)

	_, redraw, err := e.BuildWorking(0, false)
	require.NoError(t, err)
	require.True(t, redraw)

	select {
	case evt := <-received:
		data, ok := evt.Data.(map[string]bool)
		require.True(t, ok)
		require.True(t, data["redrawNeeded"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for redraw_needed event")
	}
}
