package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dcmn/ordertrack/config"
	"github.com/dcmn/ordertrack/internal/api/trackhttp"
	zohofake "github.com/dcmn/ordertrack/internal/integrations/zoho/fake"
	"github.com/dcmn/ordertrack/internal/models"
	"github.com/dcmn/ordertrack/internal/services/tracking"
	"github.com/dcmn/ordertrack/internal/storage/pgtrack"
)

type fakeRepo struct {
	tracks map[string]*models.Track
}

func (r *fakeRepo) CreateTrack(ctx context.Context, t *models.Track) error {
	r.tracks[t.TID] = t
	return nil
}

func (r *fakeRepo) GetTrack(ctx context.Context, tid string) (*models.Track, error) {
	t, ok := r.tracks[tid]
	if !ok {
		return nil, pgtrack.ErrNotFound
	}
	return t, nil
}

func (r *fakeRepo) UpdateTrackData(ctx context.Context, tid string, data models.TrackData) error {
	return nil
}

func (r *fakeRepo) EnqueueWritebackJob(ctx context.Context, tid, zohoModule, recordID string, nextAttemptAt time.Time) (uint64, error) {
	return 1, nil
}

func TestRunTrackAPI_ServesAndShutsDown(t *testing.T) {
	svc := tracking.New(&fakeRepo{tracks: map[string]*models.Track{}}, zohofake.New(), nil, nil, "t", 0)
	api := trackhttp.New(svc, "s3cret")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runTrackAPI(ctx, trackAPIOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
		}, api)
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	body, _ := json.Marshal(map[string]any{"service": "translation", "name": "Jo Do"})
	req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/api/tracking/crm/create", addr), bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(trackhttp.TokenHeader, "s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewCRMClient_SelectsFake(t *testing.T) {
	cfg := &config.Config{}
	cfg.Zoho.Mode = "fake"
	c := newCRMClient(cfg, nil)
	_, ok := c.(*zohofake.FakeClient)
	require.True(t, ok)

	// без refresh token реальный клиент не собрать
	cfg = &config.Config{}
	c = newCRMClient(cfg, nil)
	_, ok = c.(*zohofake.FakeClient)
	require.True(t, ok)
}
