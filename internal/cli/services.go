package cli

import (
	"context"
	"fmt"

	"github.com/soyeahso/triage/internal/agentapi"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/credential"
	"github.com/soyeahso/triage/internal/store"
)

// newService resolves credentials and builds the configured backend.
// Tests swap it for an in-memory service.
var newService = func(ctx context.Context, c config.Config) (agentapi.Service, error) {
	cred, err := credential.Resolve(ctx, c.Auth)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("credential", cred.Kind).Msg("credential resolved")
	return agentapi.New(c.Service, cred, log)
}

// openStore opens the ledger database, or returns nil when the store is disabled.
func openStore(c config.Config) (*store.DB, error) {
	if !c.Store.Enabled {
		return nil, nil
	}
	path := c.Store.Path
	if path == "" {
		path = paths.Database
	}
	db, err := store.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// requireStore is openStore for commands that cannot work without the ledger.
func requireStore(c config.Config) (*store.DB, error) {
	if !c.Store.Enabled {
		return nil, fmt.Errorf("the local store is disabled (store.enabled: false)")
	}
	return openStore(c)
}

// validate logs every issue and fails if there are any.
func validate(c *config.Config) error {
	issues := config.Validate(c)
	if len(issues) == 0 {
		return nil
	}
	for _, issue := range issues {
		log.Error().Str("path", issue.Path).Msg(issue.Message)
	}
	return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
}
