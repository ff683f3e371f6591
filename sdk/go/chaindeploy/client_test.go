package chaindeploy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ChainDeploy/internal/api"
	"ChainDeploy/internal/auth"
	"ChainDeploy/internal/deploy"
	"ChainDeploy/internal/networks"
)

const testBytecode = "0x6027600c60003960276000f37f0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2060006000a100"

func newTestAPI(t *testing.T, authCfg auth.Config) (*httptest.Server, *deploy.MemoryStore) {
	t.Helper()
	resolver, err := networks.NewResolver(networks.FromMap(map[string]string{
		networks.EnvMnemonic:     "test test test test test test test test test test test junk",
		networks.EnvInfuraAPIKey: "key",
	}))
	require.NoError(t, err)
	authService, err := auth.NewService(authCfg)
	require.NoError(t, err)

	cfg := resolver.Configuration()
	store := deploy.NewMemoryStore()
	service := deploy.NewService(store, deploy.NewMemoryQueue(16), cfg, 3)
	srv := httptest.NewServer(api.NewServer(":0", cfg, service, api.WithAuth(authService)).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return client
}

func TestNewClientRejectsRelativeURL(t *testing.T) {
	_, err := NewClient("localhost:8080", nil)
	assert.Error(t, err)
}

func TestNetworksAndSolc(t *testing.T) {
	srv, _ := newTestAPI(t, auth.Config{})
	client := newTestClient(t, srv)
	ctx := context.Background()

	list, err := client.Networks(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	dev, err := client.Network(ctx, "development")
	require.NoError(t, err)
	assert.Equal(t, "localhost", dev.Host)
	assert.Equal(t, 7545, dev.Port)
	assert.Equal(t, "*", dev.NetworkID)

	ropsten, err := client.Network(ctx, "ropsten")
	require.NoError(t, err)
	assert.Equal(t, "2", ropsten.NetworkID)
	assert.Equal(t, uint64(4500000), ropsten.Gas)
	assert.Empty(t, ropsten.Host)

	_, err = client.Network(ctx, "kovan")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	solc, err := client.Solc(ctx)
	require.NoError(t, err)
	assert.True(t, solc.Optimizer.Enabled)
	assert.Equal(t, 200, solc.Optimizer.Runs)
}

func TestSubmitListAndWait(t *testing.T) {
	srv, store := newTestAPI(t, auth.Config{})
	client := newTestClient(t, srv)
	ctx := context.Background()

	dep, err := client.SubmitDeployment(ctx, DeploymentRequest{
		Network:  "mainnet",
		Contract: "Emitter",
		ABI:      "[]",
		Bytecode: testBytecode,
	})
	require.NoError(t, err)
	assert.Equal(t, "pending", dep.Status)
	assert.False(t, dep.Terminal())

	listed, err := client.ListDeployments(ctx, ListQuery{Network: "mainnet", Statuses: []string{"pending"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, dep.ID, listed[0].ID)

	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	_, err = store.Claim(ctx, dep.ID)
	require.NoError(t, err)
	require.NoError(t, store.MarkSucceeded(ctx, dep.ID, deploy.Result{Address: "0xabc", TxHash: "0xdef"}))

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	done, err := client.WaitForDeployment(waitCtx, dep.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, "0xabc", done.Result.Address)
}

func TestAPIErrorsAreDecoded(t *testing.T) {
	srv, _ := newTestAPI(t, auth.Config{})
	client := newTestClient(t, srv)

	_, err := client.SubmitDeployment(context.Background(), DeploymentRequest{Network: "kovan", ABI: "[]", Bytecode: testBytecode})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "UNKNOWN_NETWORK", apiErr.Code)

	_, err = client.GetDeployment(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestBearerTokenIsSent(t *testing.T) {
	srv, _ := newTestAPI(t, auth.Config{
		Mode:   auth.ModeToken,
		Tokens: []auth.TokenConfig{{Name: "ci", Token: "s3cret", Permissions: []string{auth.PermissionAll}}},
	})
	client := newTestClient(t, srv)

	_, err := client.Networks(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", apiErr.Code)

	client.SetAccessToken("s3cret")
	assert.Equal(t, "s3cret", client.AccessToken())
	_, err = client.Networks(context.Background())
	require.NoError(t, err)
}
