// Package identity verifies bearer tokens against the platform's identity
// provider. All identity decisions are delegated to the provider so token
// revocation takes effect immediately; nothing is verified locally.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trezcool/hifadhi/core"
)

// userResponse mirrors the provider's "who am I" payload. The effective role
// lives in the app metadata; the top-level role is the provider's own
// ("authenticated") and is only used as a fallback.
type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	AppMetadata struct {
		Role string `json:"role"`
	} `json:"app_metadata"`
}

type Service struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  core.Logger
}

func NewService(conf *core.Config, logger core.Logger) *Service {
	return &Service{
		baseURL: conf.Auth.BaseURL,
		apiKey:  conf.Auth.APIKey,
		timeout: conf.Server.UpstreamTimeout,
		client:  &http.Client{},
		logger:  logger,
	}
}

// Verify introspects the bearer token and returns the matching Principal, or
// nil when the provider denies it or cannot be reached. It never returns an
// error: a failed verification is an Unauthorized outcome upstream, not a 5xx.
// No retries; the call is bounded by the configured upstream timeout.
func (svc *Service) Verify(ctx context.Context, token string) *Principal {
	if token == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.baseURL+"/auth/v1/user", nil)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("identity: building request: %v", err), err)
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", svc.apiKey)

	res, err := svc.client.Do(req)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("identity: provider unreachable: %v", err))
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil
	}

	var usr userResponse
	if err = json.NewDecoder(res.Body).Decode(&usr); err != nil {
		svc.logger.Warn(fmt.Sprintf("identity: decoding response: %v", err))
		return nil
	}
	if usr.ID == "" {
		return nil
	}

	role := usr.AppMetadata.Role
	if role == "" {
		role = usr.Role
	}
	return &Principal{
		ID:    usr.ID,
		Email: usr.Email,
		Role:  role,
		Token: token,
	}
}
