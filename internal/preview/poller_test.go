package preview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/route109-tracker/internal/common/config"
	"github.com/route109-tracker/internal/mbta"
)

type fakeAPI struct {
	predictions []mbta.Resource
	vehicles    []mbta.Resource
	err         error
}

func (f *fakeAPI) Predictions(context.Context, string, string, int, string) ([]mbta.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.predictions, nil
}

func (f *fakeAPI) Vehicles(context.Context, string) ([]mbta.Resource, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vehicles, nil
}

func pollerConfig() config.MBTAConfig {
	return config.MBTAConfig{RouteID: "109", BoardingStopID: "5483", DirectionID: 1}
}

func TestFetchOnce(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{
		predictions: []mbta.Resource{prediction("t1", "y1", now.Add(15*time.Minute))},
		vehicles:    []mbta.Resource{vehicle("y1", 0, 30, now)},
	}
	poller := NewPoller(pollerConfig(), api, quietLogger())

	snapshot := poller.fetchOnce(context.Background())
	require.NoError(t, snapshot.Err)
	assert.Len(t, snapshot.Predictions, 1)
	assert.Len(t, snapshot.Vehicles, 1)
	assert.WithinDuration(t, time.Now(), snapshot.FetchedAt, time.Second)
}

func TestFailedPollKeepsLastKnownData(t *testing.T) {
	now := time.Now()
	api := &fakeAPI{
		predictions: []mbta.Resource{prediction("t1", "y1", now.Add(15*time.Minute))},
		vehicles:    []mbta.Resource{vehicle("y1", 0, 30, now)},
	}
	poller := NewPoller(pollerConfig(), api, quietLogger())

	good := poller.fetchOnce(context.Background())
	require.NoError(t, good.Err)
	poller.latest = good

	api.err = errors.New("connection refused")
	degraded := poller.fetchOnce(context.Background())

	require.Error(t, degraded.Err)
	assert.Equal(t, good.Predictions, degraded.Predictions)
	assert.Equal(t, good.Vehicles, degraded.Vehicles)
	// The old fetch time rides along so the board shows the data aging.
	assert.Equal(t, good.FetchedAt, degraded.FetchedAt)
}

func TestFailedFirstPollStaysEmpty(t *testing.T) {
	api := &fakeAPI{err: errors.New("connection refused")}
	poller := NewPoller(pollerConfig(), api, quietLogger())

	snapshot := poller.fetchOnce(context.Background())
	require.Error(t, snapshot.Err)
	assert.Empty(t, snapshot.Predictions)
	assert.WithinDuration(t, time.Now(), snapshot.FetchedAt, time.Second)
}

func TestSetFastSwitchesDelay(t *testing.T) {
	poller := NewPoller(pollerConfig(), &fakeAPI{}, quietLogger())

	poller.SetFast(true)
	poller.mu.RLock()
	fast := poller.nextFast
	poller.mu.RUnlock()
	assert.True(t, fast)

	poller.SetFast(false)
	poller.mu.RLock()
	fast = poller.nextFast
	poller.mu.RUnlock()
	assert.False(t, fast)
}
