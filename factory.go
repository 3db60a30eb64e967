package contentgw

import (
	"fmt"
	"net/http"

	"github.com/connectlist/contentgw/internal/durable"
	"github.com/connectlist/contentgw/providers"
)

// OpenStore opens the durable store selected by cfg.Backend.
func OpenStore(cfg DurableConfig) (durable.Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return durable.NewSQLiteStore(cfg.DSN)
	case BackendPostgres:
		return durable.NewPostgresStore(cfg.DSN)
	case BackendBadger:
		return durable.NewBadgerStore(cfg.DSN)
	case BackendNone:
		return durable.NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown durable backend: %q", cfg.Backend)
	}
}

// NewProvider builds the client for pc. client may be nil.
func NewProvider(pc ProviderConfig, client *http.Client) (providers.Provider, error) {
	switch pc.Name {
	case providers.NameTMDB:
		return providers.NewTMDB(pc.APIKey, pc.BaseURL, client)
	case providers.NameRAWG:
		return providers.NewRAWG(pc.APIKey, pc.BaseURL, client)
	case providers.NameGoogleBooks:
		return providers.NewGoogleBooks(pc.APIKey, pc.BaseURL, client)
	case providers.NameYouTube:
		return providers.NewYouTube(pc.APIKey, pc.BaseURL, client)
	default:
		return nil, fmt.Errorf("unknown provider: %q", pc.Name)
	}
}

// RegisterConfiguredProviders builds and registers every provider in the
// Service's config.
func (s *Service) RegisterConfiguredProviders(client *http.Client) error {
	for _, pc := range s.GetConfig().Providers {
		p, err := NewProvider(pc, client)
		if err != nil {
			return fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		if err := s.RegisterProvider(p); err != nil {
			return err
		}
	}
	return nil
}
