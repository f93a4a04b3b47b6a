package oracle

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oddsmith/poolmarket/internal/domain"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(srv *httptest.Server) *Client {
	return New(srv.URL, time.Second, nil, slog.New(slog.DiscardHandler))
}

func TestResolveTokenLaunch(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/coins/launched":  `{"contract":"launched","active":true,"launched":true}`,
		"/coins/flopped":   `{"contract":"flopped","active":true,"launched":false}`,
		"/coins/undecided": `{"contract":"undecided","active":true,"launched":null}`,
	})
	c := newClient(srv)
	ctx := context.Background()

	res, err := c.Resolve(ctx, domain.Event{Kind: domain.KindTokenLaunch, Contract: "launched"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionResolved, res.State)
	assert.True(t, res.Outcome)

	res, err = c.Resolve(ctx, domain.Event{Kind: domain.KindTokenLaunch, Contract: "flopped"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionResolved, res.State)
	assert.False(t, res.Outcome)

	res, err = c.Resolve(ctx, domain.Event{Kind: domain.KindTokenLaunch, Contract: "undecided"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionIndeterminate, res.State)
}

func TestResolvePriceTarget(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/prices/SOL": `{"asset":"SOL","price":"210.55"}`,
		"/prices/ETH": `{"asset":"ETH","price":null}`,
	})
	c := newClient(srv)
	ctx := context.Background()

	target, _ := decimal.NewFromString("200")
	res, err := c.Resolve(ctx, domain.Event{Kind: domain.KindPriceTarget, ReferenceAsset: "SOL", TargetPrice: target})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionResolved, res.State)
	assert.True(t, res.Outcome)
	assert.Equal(t, "210.55", res.Price.String())

	high, _ := decimal.NewFromString("500")
	res, err = c.Resolve(ctx, domain.Event{Kind: domain.KindPriceTarget, ReferenceAsset: "SOL", TargetPrice: high})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionResolved, res.State)
	assert.False(t, res.Outcome)

	res, err = c.Resolve(ctx, domain.Event{Kind: domain.KindPriceTarget, ReferenceAsset: "ETH", TargetPrice: target})
	require.NoError(t, err)
	assert.Equal(t, domain.ResolutionIndeterminate, res.State, "missing quote must defer settlement")
}

func TestExists(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/coins/live": `{"contract":"live","active":true}`,
		"/coins/dead": `{"contract":"dead","active":false}`,
	})
	c := newClient(srv)
	ctx := context.Background()

	ok, err := c.Exists(ctx, "live")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, "dead")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok, "404 means unknown contract, not an error")
}

func TestResolveServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	c := newClient(srv)

	_, err := c.Resolve(context.Background(), domain.Event{Kind: domain.KindPriceTarget, ReferenceAsset: "SOL"})
	require.Error(t, err)
}
