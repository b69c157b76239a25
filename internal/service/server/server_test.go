package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2e_messaging/internal/model"
	accountrepo "e2e_messaging/internal/repository/account"
	"e2e_messaging/internal/service/account"
	"e2e_messaging/internal/service/directory"
)

func newTestServer(t *testing.T, pinger func(context.Context) error) (*httptest.Server, *account.Service) {
	t.Helper()
	accounts := account.NewService(accountrepo.NewMemoryRepo(), 1)
	srv := httptest.NewServer(NewHttpServer("", accounts, pinger).Handler())
	t.Cleanup(srv.Close)
	return srv, accounts
}

func TestGetPreKeyBundle(t *testing.T) {
	srv, accounts := newTestServer(t, nil)
	_, err := accounts.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/keys/bob")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var b model.PreKeyBundle
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.Equal(t, "bob", b.UserID)
	require.NotNil(t, b.OneTimePreKeyID)
	assert.NoError(t, account.VerifyBundle(&b))

	// the only one-time prekey has been handed out
	resp2, err := http.Get(srv.URL + "/keys/bob")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var b2 model.PreKeyBundle
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&b2))
	assert.Nil(t, b2.OneTimePreKeyID)
}

func TestGetPreKeyBundleUnknown(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/keys/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/keys/ghost", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDirectoryClientAgainstServer(t *testing.T) {
	srv, accounts := newTestServer(t, nil)
	_, err := accounts.GetOrCreate(context.Background(), "bob")
	require.NoError(t, err)

	c, err := directory.NewHTTPClient(srv.URL, srv.Client())
	require.NoError(t, err)

	b, err := c.FetchBundle(context.Background(), "bob")
	require.NoError(t, err)
	assert.NoError(t, account.VerifyBundle(b))
}

func TestHealth(t *testing.T) {
	healthy := true
	srv, _ := newTestServer(t, func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	healthy = false
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRunStopsOnCancel(t *testing.T) {
	accounts := account.NewService(accountrepo.NewMemoryRepo(), 0)
	s := NewHttpServer("127.0.0.1:0", accounts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
