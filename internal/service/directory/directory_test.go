package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	accountrepo "e2e_messaging/internal/repository/account"
	"e2e_messaging/internal/service/account"
)

func TestLocalFetchBundle(t *testing.T) {
	ctx := context.Background()
	accounts := account.NewService(accountrepo.NewMemoryRepo(), 1)
	_, err := accounts.GetOrCreate(ctx, "bob")
	require.NoError(t, err)

	b, err := NewLocal(accounts).FetchBundle(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", b.UserID)
	assert.NoError(t, account.VerifyBundle(b))

	_, err = NewLocal(accounts).FetchBundle(ctx, "ghost")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestHTTPClientFetchBundle(t *testing.T) {
	otk := uint32(7)
	want := model.PreKeyBundle{
		UserID:          "bob",
		IKPub:           []byte{1, 2, 3},
		SPKID:           1,
		SPKPub:          []byte{4, 5, 6},
		OneTimePreKeyID: &otk,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/keys/bob" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, srv.Client())
	require.NoError(t, err)

	got, err := c.FetchBundle(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	_, err = c.FetchBundle(context.Background(), "ghost")
	assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
}

func TestHTTPClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewHTTPClient(srv.URL, nil)
	require.NoError(t, err)

	_, err = c.FetchBundle(context.Background(), "bob")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindSession, apperrors.KindOf(err))
}
