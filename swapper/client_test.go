package swapper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateSubmarineSwap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/swap/submarine", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var req CreateSubmarineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "lnbc1...", req.Invoice)
		_ = json.NewEncoder(w).Encode(CreateSubmarineResponse{ID: "swap-1", Address: "addr1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	resp, err := c.CreateSubmarineSwap(context.Background(), CreateSubmarineRequest{Invoice: "lnbc1..."})
	require.NoError(t, err)
	require.Equal(t, "swap-1", resp.ID)
}

func TestGetSubmarinePairsUsesCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode([]Pair{{From: "BTC", To: "L-BTC", FeePercent: 0.1}})
	}))
	defer srv.Close()

	cache := newMockCache()
	c := NewClient(srv.URL, cache)

	pairs1, err := c.GetSubmarinePairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs1, 1)

	pairs2, err := c.GetSubmarinePairs(context.Background())
	require.NoError(t, err)
	require.Equal(t, pairs1, pairs2)
	require.Equal(t, 1, calls) // second call served from cache
}

func TestClientErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad invoice"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	_, err := c.CreateSubmarineSwap(context.Background(), CreateSubmarineRequest{Invoice: "garbage"})
	require.Error(t, err)
}

func TestCheckForMRH(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(struct {
			Address string `json:"address"`
			Found   bool   `json:"found"`
		}{Address: "bc1qmrh", Found: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil)
	addr, found, err := c.CheckForMRH(context.Background(), "lnbc1...")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "bc1qmrh", addr)
}

func TestResolveMRHPrefersLocalDecode(t *testing.T) {
	c := NewClient("http://unused.invalid", nil)
	addr, found, err := ResolveMRH(context.Background(), c, "lnbc1...", "local-addr", true)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "local-addr", addr)
}
