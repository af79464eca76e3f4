package zohohttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/dcmn/ordertrack/internal/cache/rediscache"
)

func newZohoStub(t *testing.T, tokenCalls *atomic.Int32, rejectToken *atomic.Value) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-" + r.Form.Get("client_id")})
	})
	mux.HandleFunc("/crm/v2/", func(w http.ResponseWriter, r *http.Request) {
		if rt, _ := rejectToken.Load().(string); rt != "" && r.Header.Get("Authorization") == "Zoho-oauthtoken "+rt {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPut:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"code": "SUCCESS", "status": "success"}},
			})
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"Tracking_ID": "ABC123XYZ0"}},
			})
		}
	})
	return httptest.NewServer(mux)
}

func TestClient_UpdateRecordFields(t *testing.T) {
	var tokenCalls atomic.Int32
	var reject atomic.Value
	reject.Store("")
	srv := newZohoStub(t, &tokenCalls, &reject)
	defer srv.Close()

	tp := NewTokenProvider(srv.URL, "cid", "secret", "rt", nil, time.Minute)
	c := New(srv.URL, tp)

	err := c.UpdateRecordFields(context.Background(), "Deals", "42", map[string]any{"Tracking_ID": "QQ11WW22EE"})
	require.NoError(t, err)
	// кэша нет — каждый вызов освежает токен
	require.Equal(t, int32(1), tokenCalls.Load())
}

func TestClient_TokenCachedInRedis(t *testing.T) {
	var tokenCalls atomic.Int32
	var reject atomic.Value
	reject.Store("")
	srv := newZohoStub(t, &tokenCalls, &reject)
	defer srv.Close()

	mr := miniredis.RunT(t)
	tp := NewTokenProvider(srv.URL, "cid", "secret", "rt", rediscache.New(mr.Addr()), time.Minute)
	c := New(srv.URL, tp)

	ctx := context.Background()
	require.NoError(t, c.UpdateRecordFields(ctx, "Deals", "1", map[string]any{"Tracking_ID": "A"}))
	require.NoError(t, c.UpdateRecordFields(ctx, "Deals", "2", map[string]any{"Tracking_ID": "B"}))
	require.Equal(t, int32(1), tokenCalls.Load())
}

func TestClient_RetriesWithForcedRefreshOn401(t *testing.T) {
	var tokenCalls atomic.Int32
	var reject atomic.Value
	reject.Store("")
	srv := newZohoStub(t, &tokenCalls, &reject)
	defer srv.Close()

	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	tp := NewTokenProvider(srv.URL, "cid", "secret", "rt", rc, time.Minute)
	c := New(srv.URL, tp)

	ctx := context.Background()
	// подкладываем протухший токен в кэш и учим сервер его отвергать
	require.NoError(t, rc.Set(ctx, tokenCacheKey, []byte("stale"), time.Minute))
	reject.Store("stale")

	require.NoError(t, c.UpdateRecordFields(ctx, "Deals", "42", map[string]any{"Tracking_ID": "ZZ"}))
	require.Equal(t, int32(1), tokenCalls.Load())
}

func TestClient_ReadRecordField(t *testing.T) {
	var tokenCalls atomic.Int32
	var reject atomic.Value
	reject.Store("")
	srv := newZohoStub(t, &tokenCalls, &reject)
	defer srv.Close()

	tp := NewTokenProvider(srv.URL, "cid", "secret", "rt", nil, time.Minute)
	c := New(srv.URL, tp)

	v, err := c.ReadRecordField(context.Background(), "Deals", "42", "Tracking_ID")
	require.NoError(t, err)
	require.Equal(t, "ABC123XYZ0", v)
}
