// Package services opens the configured store and builds the catalog and session
// manager shared by the HTTP server, the gRPC service and the CLI.
package services

import (
	"context"
	"fmt"

	"github.com/Plexify-AI/plexifybid-sub001/internal/catalog"
	"github.com/Plexify-AI/plexifybid-sub001/internal/config"
	"github.com/Plexify-AI/plexifybid-sub001/internal/handoff"
	"github.com/Plexify-AI/plexifybid-sub001/internal/notify"
	"github.com/Plexify-AI/plexifybid-sub001/internal/session"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store"
	"github.com/Plexify-AI/plexifybid-sub001/internal/store/postgres"
)

// Services bundles the domain components over one store.
type Services struct {
	Store    store.Store
	Catalog  *catalog.Catalog
	Sessions *session.Manager
	Notify   *notify.Registry
}

// OpenStore opens the store selected by db.driver.
func OpenStore(ctx context.Context, home string, db config.DBConfig) (store.Store, error) {
	switch db.Driver {
	case "", "sqlite":
		return store.OpenWithOptions(store.OpenOptions{Driver: "sqlite", Home: home, DSN: db.URL})
	case "postgres":
		return postgres.Open(ctx, db.URL)
	default:
		return nil, fmt.Errorf("unknown db driver %q (want sqlite or postgres)", db.Driver)
	}
}

// New builds Services over st and seeds the handoff template when missing.
func New(ctx context.Context, st store.Store, n config.NotifyConfig) (*Services, error) {
	reg := notify.NewRegistry()
	if n.SlackWebhookURL != "" {
		reg.Register(notify.SlackWebhook{WebhookURL: n.SlackWebhookURL, Username: "plexify"})
	}
	cat := catalog.New(st)
	if _, err := handoff.EnsureTemplate(ctx, cat); err != nil {
		return nil, err
	}
	return &Services{
		Store:    st,
		Catalog:  cat,
		Sessions: session.New(st, reg),
		Notify:   reg,
	}, nil
}

// Open opens the store for cfg and builds Services over it. The journal
// notifier needs home and is only registered here.
func Open(ctx context.Context, home string, cfg config.Config) (*Services, error) {
	st, err := OpenStore(ctx, home, cfg.DB)
	if err != nil {
		return nil, err
	}
	svc, err := New(ctx, st, cfg.Notify)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	if cfg.Notify.Journal && home != "" {
		svc.Notify.Register(notify.Journal{Path: notify.JournalPath(home)})
	}
	return svc, nil
}

// Close closes the store.
func (s *Services) Close() error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
