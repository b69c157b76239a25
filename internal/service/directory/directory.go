package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"e2e_messaging/internal/apperrors"
	"e2e_messaging/internal/model"
	"e2e_messaging/internal/service/account"
)

type (
	// Directory resolves a peer's published prekey bundle.
	Directory interface {
		FetchBundle(ctx context.Context, userID string) (*model.PreKeyBundle, error)
	}

	// Local serves bundles straight from the account service.
	Local struct {
		accounts *account.Service
	}

	// HTTPClient fetches bundles from a key-directory server.
	HTTPClient struct {
		baseURL *url.URL
		client  *http.Client
	}
)

var (
	_ Directory = (*Local)(nil)
	_ Directory = (*HTTPClient)(nil)
)

func NewLocal(accounts *account.Service) *Local {
	return &Local{accounts: accounts}
}

func (l *Local) FetchBundle(ctx context.Context, userID string) (*model.PreKeyBundle, error) {
	return l.accounts.Bundle(ctx, userID)
}

func NewHTTPClient(baseURL string, client *http.Client) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("http://" + baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse directory url: %w", err)
		}
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{baseURL: u, client: client}, nil
}

func (c *HTTPClient) FetchBundle(ctx context.Context, userID string) (*model.PreKeyBundle, error) {
	u := *c.baseURL
	u.Path = fmt.Sprintf("/keys/%s", url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.Session("fetch prekey bundle", err)
	}

	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.ErrAccountNotFound
	default:
		return nil, apperrors.Session("fetch prekey bundle", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var b model.PreKeyBundle
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return nil, apperrors.Session("decode prekey bundle", err)
	}

	return &b, nil
}
