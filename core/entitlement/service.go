// Package entitlement answers a single question: does this user currently hold
// an active subscription? The answer is recomputed on every request — a stale
// "active" must never be trusted across requests — and ambiguity fails closed.
package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trezcool/hifadhi/core"
)

const rpcPath = "/rest/v1/rpc/has_active_subscription"

type Service struct {
	baseURL    string
	serviceKey string
	timeout    time.Duration
	client     *http.Client
	logger     core.Logger
}

func NewService(conf *core.Config, logger core.Logger) *Service {
	return &Service{
		baseURL:    conf.Auth.BaseURL,
		serviceKey: conf.Auth.ServiceKey,
		timeout:    conf.Server.UpstreamTimeout,
		client:     &http.Client{},
		logger:     logger,
	}
}

// HasActiveSubscription calls the subscription RPC with the service-level
// credential (not the end user's token). Any transport error, non-2xx status
// or non-true body yields false.
func (svc *Service) HasActiveSubscription(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, svc.timeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"uid": userID})
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.baseURL+rpcPath, bytes.NewReader(payload))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("entitlement: building request: %v", err), err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", svc.serviceKey)
	req.Header.Set("Authorization", "Bearer "+svc.serviceKey)

	res, err := svc.client.Do(req)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("entitlement: rpc unreachable: %v", err))
		return false
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return false
	}

	var active bool
	if err = json.NewDecoder(res.Body).Decode(&active); err != nil {
		svc.logger.Warn(fmt.Sprintf("entitlement: decoding response: %v", err))
		return false
	}
	return active
}
