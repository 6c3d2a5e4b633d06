package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

var (
	// azCommand is the Azure CLI binary looked up on PATH.
	azCommand = "az"
	// imdsEndpoint is the instance metadata token endpoint on Azure VMs.
	imdsEndpoint = "http://169.254.169.254/metadata/identity/oauth2/token"
	// imdsDialTimeout bounds the first IMDS request, which fails slowly off Azure.
	imdsDialTimeout = time.Second
)

const cliTimeout = 30 * time.Second

// cliTokenSource shells out to `az account get-access-token`.
type cliTokenSource struct {
	ctx    context.Context
	path   string
	scope  string
	tenant string
}

func newCLITokenSource(ctx context.Context, scope, tenant string) (*cliTokenSource, error) {
	path, err := exec.LookPath(azCommand)
	if err != nil {
		return nil, fmt.Errorf("azure cli not found on PATH")
	}
	return &cliTokenSource{ctx: ctx, path: path, scope: scope, tenant: tenant}, nil
}

// cliToken is the JSON printed by `az account get-access-token`.
type cliToken struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresOn   string `json:"expiresOn"`  // local time, older CLIs
	ExpiresUnix int64  `json:"expires_on"` // unix seconds, CLI 2.54+
}

func (s *cliTokenSource) Token() (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(s.ctx, cliTimeout)
	defer cancel()

	args := []string{"account", "get-access-token", "--output", "json", "--scope", s.scope}
	if s.tenant != "" {
		args = append(args, "--tenant", s.tenant)
	}
	cmd := exec.CommandContext(ctx, s.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("azure cli: %s", msg)
	}

	var out cliToken
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("azure cli: parsing token: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("azure cli: empty access token")
	}

	tok := &oauth2.Token{AccessToken: out.AccessToken, TokenType: "Bearer"}
	switch {
	case out.ExpiresUnix > 0:
		tok.Expiry = time.Unix(out.ExpiresUnix, 0)
	case out.ExpiresOn != "":
		if t, err := time.ParseInLocation("2006-01-02 15:04:05.999999", out.ExpiresOn, time.Local); err == nil {
			tok.Expiry = t
		}
	}
	return tok, nil
}

// managedIdentitySource requests tokens from the App Service identity
// endpoint when IDENTITY_ENDPOINT is set, and from IMDS otherwise.
type managedIdentitySource struct {
	ctx      context.Context
	http     *retryablehttp.Client
	endpoint string
	header   string // X-IDENTITY-HEADER; empty for IMDS
	resource string
	clientID string
}

func newManagedIdentitySource(ctx context.Context, scope, clientID string) *managedIdentitySource {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil

	s := &managedIdentitySource{
		ctx:      ctx,
		http:     rc,
		endpoint: imdsEndpoint,
		resource: strings.TrimSuffix(scope, "/.default"),
		clientID: clientID,
	}
	if ep := os.Getenv("IDENTITY_ENDPOINT"); ep != "" {
		s.endpoint = ep
		s.header = os.Getenv("IDENTITY_HEADER")
	}
	return s
}

func (s *managedIdentitySource) appService() bool { return s.header != "" }

// miToken covers both endpoints. IMDS sends expires_on as a string, some
// hosts send a number.
type miToken struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresOn   json.RawMessage `json:"expires_on"`
}

func (s *managedIdentitySource) Token() (*oauth2.Token, error) {
	return s.fetch(s.ctx)
}

func (s *managedIdentitySource) fetch(ctx context.Context) (*oauth2.Token, error) {
	q := url.Values{"resource": {s.resource}}
	if s.appService() {
		q.Set("api-version", "2019-08-01")
	} else {
		q.Set("api-version", "2018-02-01")
	}
	if s.clientID != "" {
		q.Set("client_id", s.clientID)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("managed identity: %w", err)
	}
	if s.appService() {
		req.Header.Set("X-IDENTITY-HEADER", s.header)
	} else {
		req.Header.Set("Metadata", "true")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("managed identity: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("managed identity: token endpoint returned %d", resp.StatusCode)
	}

	var out miToken
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("managed identity: parsing token: %w", err)
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("managed identity: empty access token")
	}
	tok := &oauth2.Token{AccessToken: out.AccessToken, TokenType: "Bearer"}
	if secs, err := strconv.ParseInt(strings.Trim(string(out.ExpiresOn), `"`), 10, 64); err == nil && secs > 0 {
		tok.Expiry = time.Unix(secs, 0)
	}
	return tok, nil
}
