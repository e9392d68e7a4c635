package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"internwatch/internal/domain"
	"internwatch/internal/events"
	"internwatch/internal/scheduler"
)

// Status is the poller state reported by the status API.
type Status struct {
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	LastRunAt time.Time `json:"last_run_at,omitzero"`
	LastOkAt  time.Time `json:"last_ok_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	LastStage Stage     `json:"last_stage,omitempty"`
	LastNew   int       `json:"last_new"`
}

// Poller serializes cycles from the schedule and from manual triggers.
type Poller struct {
	mu     sync.Mutex
	runner atomic.Pointer[Runner]
	status atomic.Value // Status
	hub    *events.Hub
	log    zerolog.Logger
}

func NewPoller(r *Runner, hub *events.Hub, log zerolog.Logger) *Poller {
	p := &Poller{hub: hub, log: log.With().Str("component", "poller").Logger()}
	p.runner.Store(r)
	p.status.Store(Status{})
	return p
}

// SetRunner swaps the collaborators; the next cycle uses them.
func (p *Poller) SetRunner(r *Runner) { p.runner.Store(r) }

func (p *Poller) Status() Status { return p.status.Load().(Status) }

// Listings returns the stored snapshot.
func (p *Poller) Listings(ctx context.Context) ([]domain.Listing, error) {
	return p.runner.Load().Store.Load(ctx)
}

// Trigger runs one cycle now, waiting for a cycle already in progress.
func (p *Poller) Trigger(ctx context.Context, reqID string) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.Status()
	st.Running = true
	st.LastRunAt = time.Now().UTC()
	p.status.Store(st)
	p.hub.Publish(events.Make(reqID, events.TypeRunStarted, nil))

	res, err := p.runner.Load().RunOnce(ctx)

	st.Running = false
	st.Runs++
	st.LastNew = len(res.New)
	if err != nil {
		st.LastError = err.Error()
		st.LastStage = ""
		var se *StageError
		if errors.As(err, &se) {
			st.LastStage = se.Stage
		}
	} else {
		st.LastError = ""
		st.LastStage = ""
		st.LastOkAt = time.Now().UTC()
	}
	p.status.Store(st)

	// listing_new means delivered; run_finished still carries res.New
	if res.Notified {
		for _, l := range res.New {
			p.hub.Publish(events.Make(reqID, events.TypeNewListing, l))
		}
	}
	p.hub.Publish(events.Make(reqID, events.TypeRunFinished, runFinished{Result: res, Error: st.LastError}))
	return res, err
}

type runFinished struct {
	Result
	Error string `json:"error,omitempty"`
}

// Run triggers cycles on spec until ctx is done.
func (p *Poller) Run(ctx context.Context, spec scheduler.Spec) error {
	p.log.Info().Dur("every", spec.Every).Str("cron", spec.Cron).Msg("poller started")
	return scheduler.Run(ctx, spec, "poll", func(ctx context.Context) error {
		_, err := p.Trigger(ctx, "")
		if errors.Is(err, ErrBusy) {
			p.log.Warn().Msg("skipped, another run in progress")
			return nil
		}
		return err
	}, p.log)
}
