package authz

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type stubDecider struct {
	decision AccessDecision
	err      error

	gotMethod   string
	gotResource Resource
}

func (d *stubDecider) Decide(ctx context.Context, identity Identity, method string, resource Resource) (AccessDecision, error) {
	d.gotMethod = method
	d.gotResource = resource
	if d.err != nil {
		return AccessDecision{}, d.err
	}
	return d.decision, nil
}

type countingObserver struct {
	outcomes map[string]int
}

func (o *countingObserver) ObserveDecision(outcome string) {
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func newVerificationServer(t *testing.T, decider Decider, observer DecisionObserver, identity *Identity) *httptest.Server {
	t.Helper()
	handler := NewHandler(nil, decider, observer)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := req.Context()
			if identity != nil {
				ctx = ContextWithIdentity(ctx, *identity)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler.MountRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func TestVerifyAccessRespondsWithDecision(t *testing.T) {
	decider := &stubDecider{decision: AccessDecision{
		Valid:   true,
		Allowed: []AccessGrant{{Status: AccessPrivate, FarmIDs: []int64{7}}, {Status: AccessPublic}},
		UserID:  7,
	}}
	observer := &countingObserver{}
	identity := Identity{UserID: 7}
	server := newVerificationServer(t, decider, observer, &identity)

	body := `{"method":"GET","resource":{"name":"equipment","meta":{"farm_id":7}}}`
	resp, err := http.Post(server.URL+"/auth/access_verification", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decision AccessDecision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decision))
	require.True(t, decision.Valid)
	require.Equal(t, int64(7), decision.UserID)
	require.Len(t, decision.Allowed, 2)

	require.Equal(t, "GET", decider.gotMethod)
	require.Equal(t, "equipment", decider.gotResource.Name)
	farmID, ok := decider.gotResource.Scope.FarmID()
	require.True(t, ok)
	require.Equal(t, int64(7), farmID)
	require.Equal(t, 1, observer.outcomes["allow"])
}

func TestVerifyAccessOmitsScopeWithoutFarmID(t *testing.T) {
	decider := &stubDecider{decision: AccessDecision{Valid: false, UserID: 3}}
	observer := &countingObserver{}
	identity := Identity{UserID: 3}
	server := newVerificationServer(t, decider, observer, &identity)

	body := `{"method":"PUT","resource":{"name":"farm"}}`
	resp, err := http.Post(server.URL+"/auth/access_verification", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	// A denial is still a 200; validity travels in the body.
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, decider.gotResource.Scope.IsGlobal())
	require.Equal(t, 1, observer.outcomes["deny"])
}

func TestVerifyAccessDenialSerializesEmptyTierList(t *testing.T) {
	engine := NewEngine(newFakeStore(), newFakeStore())
	identity := Identity{UserID: 3}
	server := newVerificationServer(t, engine, nil, &identity)

	body := `{"method":"PUT","resource":{"name":"farm"}}`
	resp, err := http.Post(server.URL+"/auth/access_verification", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Calling services expect a list on every decision, [] on denial.
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"allowed_access":[]`)
	require.NotContains(t, string(raw), `"allowed_access":null`)
}

func TestVerifyAccessUnknownResourceIs404(t *testing.T) {
	decider := &stubDecider{err: &UnknownResourceTypeError{Name: "tractor", Valid: ResourceTypes()}}
	observer := &countingObserver{}
	identity := Identity{UserID: 3}
	server := newVerificationServer(t, decider, observer, &identity)

	body := `{"method":"GET","resource":{"name":"tractor"}}`
	resp, err := http.Post(server.URL+"/auth/access_verification", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, 1, observer.outcomes["error"])
}

func TestVerifyAccessRequiresIdentity(t *testing.T) {
	server := newVerificationServer(t, &stubDecider{}, nil, nil)

	body := `{"method":"GET","resource":{"name":"farm"}}`
	resp, err := http.Post(server.URL+"/auth/access_verification", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestVerifyAccessRejectsMissingFields(t *testing.T) {
	identity := Identity{UserID: 3}
	server := newVerificationServer(t, &stubDecider{}, nil, &identity)

	resp, err := http.Post(server.URL+"/auth/access_verification", "application/json", strings.NewReader(`{"method":"GET"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
