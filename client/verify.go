// Package client is the embeddable Go client other services use to ask the
// authorization service for access decisions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Grant is one tier of allowed access in a read decision.
type Grant struct {
	Status  string  `json:"status"`
	FarmIDs []int64 `json:"farm_id,omitempty"`
}

// Decision mirrors the verification response body.
type Decision struct {
	Valid   bool    `json:"valid"`
	Allowed []Grant `json:"allowed_access,omitempty"`
	IsAdmin bool    `json:"is_admin"`
	UserID  int64   `json:"user_id"`
}

// Verifier calls the access verification endpoint on behalf of a service
// that received a bearer token from one of its users.
type Verifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewVerifier constructs a new verifier against the service base URL, for
// example "http://agrigate:8080".
func NewVerifier(baseURL string) *Verifier {
	return &Verifier{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Ping checks if the remote authorization service is available.
func (v *Verifier) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/healthz", v.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("authorization service returned status %d", resp.StatusCode)
	}
	return nil
}

type verificationRequest struct {
	Method   string               `json:"method"`
	Resource verificationResource `json:"resource"`
}

type verificationResource struct {
	Name string           `json:"name"`
	Meta verificationMeta `json:"meta"`
}

type verificationMeta struct {
	FarmID int64 `json:"farm_id,omitempty"`
}

// Verify asks for an access decision. The caller's bearer token identifies
// the user; farmID zero means the check is not scoped to a farm.
func (v *Verifier) Verify(ctx context.Context, token, method, resource string, farmID int64) (Decision, error) {
	payload := verificationRequest{
		Method: method,
		Resource: verificationResource{
			Name: resource,
			Meta: verificationMeta{FarmID: farmID},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Decision{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/auth/access_verification", v.baseURL), bytes.NewReader(body))
	if err != nil {
		return Decision{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Decision{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("verification failed with status %d", resp.StatusCode)
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, err
	}
	return decision, nil
}
