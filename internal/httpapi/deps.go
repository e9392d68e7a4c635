package httpapi

import (
	"context"

	"github.com/rs/zerolog"

	"internwatch/internal/config"
	"internwatch/internal/domain"
	"internwatch/internal/events"
	"internwatch/internal/poll"
)

// Poller is the part of *poll.Poller the API drives.
type Poller interface {
	Status() poll.Status
	Listings(ctx context.Context) ([]domain.Listing, error)
	Trigger(ctx context.Context, reqID string) (poll.Result, error)
}

type Deps struct {
	Poller Poller
	Hub    *events.Hub

	// Config returns the config currently in effect.
	Config func() config.Config

	Version string
	Log     zerolog.Logger
}
