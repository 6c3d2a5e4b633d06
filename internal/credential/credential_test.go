package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soyeahso/triage/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearAzureEnv empties every source the default chain reads: env vars, the
// CLI on PATH and the metadata endpoint.
func clearAzureEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"AZURE_ACCESS_TOKEN", "AZURE_TENANT_ID", "AZURE_CLIENT_ID", "AZURE_CLIENT_SECRET",
		"IDENTITY_ENDPOINT", "IDENTITY_HEADER"} {
		t.Setenv(k, "")
	}
	t.Setenv("PATH", t.TempDir())

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	orig := imdsEndpoint
	imdsEndpoint = dead.URL
	t.Cleanup(func() { imdsEndpoint = orig })
}

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenant-1/oauth2/v2.0/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, config.DefaultScope, r.PostForm.Get("scope"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"minted-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_APIKey(t *testing.T) {
	cred, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthAPIKey, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, KindAPIKey, cred.Kind)
	assert.Equal(t, "sk-test", cred.APIKey)
	assert.Nil(t, cred.Source)
}

func TestResolve_APIKeyMissing(t *testing.T) {
	_, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthAPIKey})
	assert.Error(t, err)
}

func TestResolve_StaticToken(t *testing.T) {
	cred, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthToken, Token: "abc"})
	require.NoError(t, err)
	assert.Equal(t, KindStatic, cred.Kind)

	tok, err := cred.Source.Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.Type())
}

func TestResolve_ClientCredentials(t *testing.T) {
	clearAzureEnv(t)
	srv := tokenServer(t)

	cred, err := Resolve(context.Background(), config.AuthConfig{
		Mode:          config.AuthClientCredentials,
		TenantID:      "tenant-1",
		ClientID:      "client-1",
		ClientSecret:  "secret-1",
		AuthorityHost: srv.URL,
		Scope:         config.DefaultScope,
	})
	require.NoError(t, err)
	assert.Equal(t, KindClientCredentials, cred.Kind)

	tok, err := cred.Source.Token()
	require.NoError(t, err)
	assert.Equal(t, "minted-token", tok.AccessToken)
}

func TestResolve_ClientCredentialsMissingFields(t *testing.T) {
	clearAzureEnv(t)

	_, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthClientCredentials, TenantID: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client id")
	assert.Contains(t, err.Error(), "client secret")
}

func TestResolve_DefaultPrefersEnvToken(t *testing.T) {
	clearAzureEnv(t)
	t.Setenv("AZURE_ACCESS_TOKEN", "env-token")
	t.Setenv("AZURE_TENANT_ID", "tenant-1")

	cred, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthDefault})
	require.NoError(t, err)
	assert.Equal(t, KindStatic, cred.Kind)

	tok, err := cred.Source.Token()
	require.NoError(t, err)
	assert.Equal(t, "env-token", tok.AccessToken)
}

func TestResolve_DefaultFallsBackToClientCredentials(t *testing.T) {
	clearAzureEnv(t)
	srv := tokenServer(t)
	t.Setenv("AZURE_TENANT_ID", "tenant-1")
	t.Setenv("AZURE_CLIENT_ID", "client-1")
	t.Setenv("AZURE_CLIENT_SECRET", "secret-1")

	cred, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthDefault, AuthorityHost: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, KindClientCredentials, cred.Kind)

	tok, err := cred.Source.Token()
	require.NoError(t, err)
	assert.Equal(t, "minted-token", tok.AccessToken)
}

func TestResolve_DefaultNothingFound(t *testing.T) {
	clearAzureEnv(t)

	_, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthDefault})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.Contains(t, err.Error(), "AZURE_ACCESS_TOKEN")
	assert.Contains(t, err.Error(), "azure cli not found")
	assert.Contains(t, err.Error(), "managed identity unavailable")
}

func TestResolve_UnknownMode(t *testing.T) {
	_, err := Resolve(context.Background(), config.AuthConfig{Mode: "kerberos"})
	assert.Error(t, err)
}

func TestResolve_APIKeyHasNoSource(t *testing.T) {
	cred, err := Resolve(context.Background(), config.AuthConfig{Mode: config.AuthAPIKey, APIKey: "k"})
	require.NoError(t, err)
	assert.Nil(t, cred.Source)
}
