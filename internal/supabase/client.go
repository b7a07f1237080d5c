package supabase

import (
	"github.com/supabase-community/supabase-go"
	"keyframes-backend/internal/config"
)

// Client wraps the Supabase API client. Table reads that must bypass the
// database pool (export status written by the edge function) go through it.
type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}
