package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchSamplesParsesISOAndSkipsBadDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"Date":"2024-01-01T00:00:00Z","Value":10},
			{"Date":"not-a-date","Value":20},
			{"Date":"2024-01-01T00:00:01Z","Value":"30"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	samples, err := c.FetchSamples(context.Background(), "A", 0, 100)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.True(t, samples[0].Valid)
	require.Equal(t, 10.0, samples[0].Value)
	require.Equal(t, 30.0, samples[1].Value)
}

func TestFetchSamplesLegacyDateFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"Date":"01:01:2024:00:00:00","Value":5}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	samples, err := c.FetchSamples(context.Background(), "A", 0, 100)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, 5.0, samples[0].Value)
}

func TestFetchSamplesUnparseableValueIsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"Date":"2024-01-01T00:00:00Z","Value":"not-a-number"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	samples, err := c.FetchSamples(context.Background(), "A", 0, 100)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.False(t, samples[0].Valid)
}

func TestFetchSamplesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Millisecond)
	_, err := c.FetchSamples(context.Background(), "A", 0, 100)
	require.Error(t, err)
}

func TestTaglist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"Tag":"A","Unit":"psi","RegisterDataType":"float"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	tags, err := c.Taglist(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A", tags[0].Tag)
}
