// Package poll runs watch cycles: fetch the document, extract listings,
// notify about the new ones and persist the snapshot.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"internwatch/internal/domain"
	"internwatch/internal/fetch"
	"internwatch/internal/listing"
	"internwatch/internal/notify"
)

// Stage names the step of a cycle that failed.
type Stage string

const (
	StageFetch  Stage = "fetch"
	StageParse  Stage = "parse"
	StageLoad   Stage = "load"
	StageNotify Stage = "notify"
	StageSave   Stage = "save"
)

// ErrBusy is returned when another cycle holds the data directory lock.
var ErrBusy = errors.New("another run holds the data directory lock")

type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func stageErr(s Stage, err error) error { return &StageError{Stage: s, Err: err} }

// Source yields the watched document.
type Source interface {
	Fetch(ctx context.Context) (fetch.Document, error)
}

// Snapshots is the part of a store a cycle needs.
type Snapshots interface {
	Load(ctx context.Context) ([]domain.Listing, error)
	Save(ctx context.Context, listings []domain.Listing) error
}

// Result describes one cycle.
type Result struct {
	NotModified bool             `json:"not_modified"`
	Parsed      int              `json:"parsed"`
	Skipped     int              `json:"skipped"`
	Previous    int              `json:"previous"`
	New         []domain.Listing `json:"new"`
	Notified    bool             `json:"notified"`
	Saved       bool             `json:"saved"`
	DryRun      bool             `json:"dry_run,omitempty"`
	Duration    time.Duration    `json:"duration_ns"`
}

// Runner holds the collaborators of a cycle.
type Runner struct {
	Source   Source
	Store    Snapshots
	Notifier notify.Notifier
	Format   listing.Format

	// DryRun reports new listings on the console only and writes nothing.
	DryRun bool

	// LockPath, when set, is flock'ed for the duration of a cycle.
	LockPath string

	Log zerolog.Logger
}

// RunOnce performs one cycle. The snapshot is written only after the
// notification was delivered, and the ETag only after the snapshot.
func (r *Runner) RunOnce(ctx context.Context) (res Result, err error) {
	start := time.Now()
	res.DryRun = r.DryRun
	defer func() { res.Duration = time.Since(start) }()

	if r.LockPath != "" {
		lk := flock.New(r.LockPath)
		ok, lerr := lk.TryLock()
		if lerr != nil {
			return res, fmt.Errorf("lock %s: %w", r.LockPath, lerr)
		}
		if !ok {
			return res, ErrBusy
		}
		defer lk.Unlock()
	}

	doc, err := r.Source.Fetch(ctx)
	if err != nil {
		return res, stageErr(StageFetch, err)
	}
	if doc.NotModified {
		res.NotModified = true
		r.Log.Info().Msg("document not modified")
		return res, nil
	}

	rows, err := listing.ParseFormat(r.Format, doc.Text)
	if err != nil {
		return res, stageErr(StageParse, err)
	}
	current := listing.Accepted(rows)
	res.Parsed = len(current)
	res.Skipped = len(rows) - len(current)
	for _, row := range rows {
		if !row.OK() {
			r.Log.Debug().Int("line", row.Line).Str("reason", string(row.Skip)).Msg("row skipped")
		}
	}

	previous, err := r.Store.Load(ctx)
	if err != nil {
		return res, stageErr(StageLoad, err)
	}
	res.Previous = len(previous)

	res.New = listing.Diff(current, previous)
	log := r.Log.With().Int("parsed", res.Parsed).Int("previous", res.Previous).Int("new", len(res.New)).Logger()

	if len(res.New) == 0 {
		log.Info().Msg("document changed, no new listings")
		if !r.DryRun {
			r.commit(ctx, doc)
		}
		return res, nil
	}

	if r.DryRun {
		_ = notify.Console{Log: r.Log}.Notify(ctx, res.New)
		log.Info().Msg("dry run, snapshot not written")
		return res, nil
	}

	if err := r.Notifier.Notify(ctx, res.New); err != nil {
		return res, stageErr(StageNotify, err)
	}
	res.Notified = true

	if err := ctx.Err(); err != nil {
		return res, stageErr(StageSave, err)
	}
	if err := r.Store.Save(ctx, current); err != nil {
		return res, stageErr(StageSave, err)
	}
	res.Saved = true
	r.commit(ctx, doc)

	log.Info().Dur("took", time.Since(start)).Msg("new listings delivered")
	return res, nil
}

func (r *Runner) commit(ctx context.Context, doc fetch.Document) {
	if err := doc.Commit(ctx); err != nil {
		r.Log.Warn().Err(err).Msg("save etag failed")
	}
}
