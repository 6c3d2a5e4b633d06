// Package credential resolves how requests to the agent service are
// authenticated. Tokens are exposed as an oauth2.TokenSource, which caches them
// and refreshes them before they expire.
package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/triage/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Kinds of credential a chain can resolve to.
const (
	KindStatic            = "static-token"
	KindClientCredentials = "client-credentials"
	KindAPIKey            = "api-key"
	KindManagedIdentity   = "managed-identity"
	KindAzureCLI          = "azure-cli"
)

// ErrNoCredential is returned when the default chain finds nothing usable.
var ErrNoCredential = errors.New("credential: no usable credential found")

// Credential is a resolved authentication source.
type Credential struct {
	Kind   string
	Source oauth2.TokenSource // nil for api-key credentials
	APIKey string
}

// Resolve picks a credential according to auth.mode. In "default" mode it
// walks a chain:
//
//  1. explicit token (config, then AZURE_ACCESS_TOKEN)
//  2. client credentials (config, then AZURE_TENANT_ID / AZURE_CLIENT_ID / AZURE_CLIENT_SECRET)
//  3. managed identity through IDENTITY_ENDPOINT (App Service, Container Apps)
//  4. the Azure CLI login (`az account get-access-token`)
//  5. managed identity through the VM metadata endpoint
//
// Steps 3 to 5 fetch a token before they are chosen, so an installed but
// logged-out CLI falls through. ctx is retained by the token sources.
func Resolve(ctx context.Context, cfg config.AuthConfig) (*Credential, error) {
	switch cfg.Mode {
	case config.AuthAPIKey:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("credential: api-key mode requires auth.apiKey")
		}
		return &Credential{Kind: KindAPIKey, APIKey: cfg.APIKey}, nil

	case config.AuthToken:
		if cfg.Token == "" {
			return nil, fmt.Errorf("credential: token mode requires auth.token")
		}
		return staticCredential(cfg.Token), nil

	case config.AuthClientCredentials:
		cc := clientCredentialsFrom(cfg)
		if err := cc.complete(); err != nil {
			return nil, err
		}
		return cc.credential(ctx, cfg), nil

	case config.AuthDefault, "":
		return resolveDefault(ctx, cfg)

	default:
		return nil, fmt.Errorf("credential: unknown auth mode %q", cfg.Mode)
	}
}

func resolveDefault(ctx context.Context, cfg config.AuthConfig) (*Credential, error) {
	var tried []string

	token := cfg.Token
	if token == "" {
		token = os.Getenv("AZURE_ACCESS_TOKEN")
	}
	if token != "" {
		return staticCredential(token), nil
	}
	tried = append(tried, "auth.token/AZURE_ACCESS_TOKEN")

	cc := clientCredentialsFrom(cfg)
	if err := cc.complete(); err == nil {
		return cc.credential(ctx, cfg), nil
	} else {
		tried = append(tried, err.Error())
	}

	scope := cfg.Scope
	if scope == "" {
		scope = config.DefaultScope
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = os.Getenv("AZURE_CLIENT_ID")
	}

	if os.Getenv("IDENTITY_ENDPOINT") != "" {
		mi := newManagedIdentitySource(ctx, scope, clientID)
		cred, err := verified(KindManagedIdentity, mi.Token, mi)
		if err == nil {
			return cred, nil
		}
		tried = append(tried, err.Error())
	}

	if az, err := newCLITokenSource(ctx, scope, cfg.TenantID); err != nil {
		tried = append(tried, err.Error())
	} else if cred, err := verified(KindAzureCLI, az.Token, az); err != nil {
		tried = append(tried, err.Error())
	} else {
		return cred, nil
	}

	if os.Getenv("IDENTITY_ENDPOINT") == "" {
		mi := newManagedIdentitySource(ctx, scope, clientID)
		tryIMDS := func() (*oauth2.Token, error) {
			pctx, cancel := context.WithTimeout(ctx, imdsDialTimeout)
			defer cancel()
			return mi.fetch(pctx)
		}
		cred, err := verified(KindManagedIdentity, tryIMDS, mi)
		if err == nil {
			return cred, nil
		}
		tried = append(tried, "managed identity unavailable")
	}

	return nil, fmt.Errorf("%w (tried: %s)", ErrNoCredential, strings.Join(tried, "; "))
}

// verified fetches one token with first and returns a credential that starts
// from it and refreshes from src.
func verified(kind string, first func() (*oauth2.Token, error), src oauth2.TokenSource) (*Credential, error) {
	tok, err := first()
	if err != nil {
		return nil, err
	}
	return &Credential{Kind: kind, Source: oauth2.ReuseTokenSource(tok, src)}, nil
}

func staticCredential(token string) *Credential {
	return &Credential{
		Kind:   KindStatic,
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
	}
}

type clientCreds struct {
	tenantID, clientID, clientSecret string
}

func clientCredentialsFrom(cfg config.AuthConfig) clientCreds {
	cc := clientCreds{tenantID: cfg.TenantID, clientID: cfg.ClientID, clientSecret: cfg.ClientSecret}
	if cc.tenantID == "" {
		cc.tenantID = os.Getenv("AZURE_TENANT_ID")
	}
	if cc.clientID == "" {
		cc.clientID = os.Getenv("AZURE_CLIENT_ID")
	}
	if cc.clientSecret == "" {
		cc.clientSecret = os.Getenv("AZURE_CLIENT_SECRET")
	}
	return cc
}

func (c clientCreds) complete() error {
	var missing []string
	if c.tenantID == "" {
		missing = append(missing, "tenant id")
	}
	if c.clientID == "" {
		missing = append(missing, "client id")
	}
	if c.clientSecret == "" {
		missing = append(missing, "client secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("client credentials missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c clientCreds) credential(ctx context.Context, cfg config.AuthConfig) *Credential {
	authority := strings.TrimSuffix(cfg.AuthorityHost, "/")
	if authority == "" {
		authority = config.DefaultAuthorityHost
	}
	scope := cfg.Scope
	if scope == "" {
		scope = config.DefaultScope
	}
	cc := &clientcredentials.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", authority, c.tenantID),
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return &Credential{Kind: KindClientCredentials, Source: oauth2.ReuseTokenSource(nil, cc.TokenSource(ctx))}
}
