// Package notify renders new listings and delivers them to the configured
// sinks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"internwatch/internal/domain"
)

// ErrNotConfigured is returned when a sink is enabled without the settings
// it needs. It is raised before any network I/O.
var ErrNotConfigured = errors.New("notifier not configured")

type Notifier interface {
	Name() string
	Notify(ctx context.Context, listings []domain.Listing) error
}

// Multi delivers to every sink in order. All sinks are attempted; the
// returned error joins the failures.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, listings []domain.Listing) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, listings); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Console writes one log line per listing.
type Console struct {
	Log zerolog.Logger
}

func (c Console) Name() string { return "console" }

func (c Console) Notify(_ context.Context, listings []domain.Listing) error {
	for _, l := range listings {
		c.Log.Info().
			Str("company", l.Company).
			Str("role", l.Role).
			Str("link", l.Link).
			Msg("new listing")
	}
	return nil
}
