// Package daemon runs backups on an interval in the foreground, with
// flock-based locking to prevent multiple instances racing the same
// repository.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofrs/flock"

	"termbackup/internal/engine"
	"termbackup/internal/history"
	"termbackup/internal/logging"
	"termbackup/internal/profile"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

const (
	defaultInterval      = 60 * time.Minute
	defaultRetryInterval = 5 * time.Minute
	failureWarnThreshold = 3
)

// Backuper runs a single backup. The engine's Runner satisfies it.
type Backuper interface {
	Run(ctx context.Context, req engine.Request) (*engine.Result, error)
}

// Daemon repeatedly backs up one profile until its context is cancelled.
type Daemon struct {
	target   *profile.Profile
	password string
	backuper Backuper
	console  *ui.Console
	logger   *slog.Logger

	interval      time.Duration
	retryInterval time.Duration

	lockPath string
	lock     *flock.Flock
}

// Options configures a Daemon.
type Options struct {
	Profile  *profile.Profile
	Password string
	Backuper Backuper
	Console  *ui.Console
	Logger   *slog.Logger

	// Interval is the pause between successful iterations. Defaults to an
	// hour.
	Interval time.Duration
	// RetryInterval is the shorter pause after a failed iteration.
	// Defaults to five minutes, capped at Interval.
	RetryInterval time.Duration

	// LockPath is the flock file guarding single-instance execution.
	LockPath string
}

// New constructs a daemon.
func New(opts Options) (*Daemon, error) {
	if opts.Profile == nil || opts.Backuper == nil || opts.LockPath == "" {
		return nil, tbkerr.New(tbkerr.KindConfig, "daemon requires a profile, a backup runner, and a lock path")
	}
	console := opts.Console
	if console == nil {
		console = ui.NewPlainConsole(os.Stdout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	if retry > interval {
		retry = interval
	}
	return &Daemon{
		target:        opts.Profile,
		password:      opts.Password,
		backuper:      opts.Backuper,
		console:       console,
		logger:        logger,
		interval:      interval,
		retryInterval: retry,
		lockPath:      opts.LockPath,
		lock:          flock.New(opts.LockPath),
	}, nil
}

// Summary describes a finished daemon run.
type Summary struct {
	Uptime     time.Duration
	Iterations int
	Successes  int
	Failures   int
}

// Run loops until ctx is cancelled, then returns the run summary. Iteration
// failures are logged and retried on the shorter interval; only lock
// acquisition errors abort the loop.
func (d *Daemon) Run(ctx context.Context) (*Summary, error) {
	ok, err := d.lock.TryLock()
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindConfig, err, "acquire daemon lock")
	}
	if !ok {
		return nil, tbkerr.New(tbkerr.KindConfig, "another termbackup daemon is already running").
			WithHint("lock file: " + d.lockPath)
	}
	ctx = logging.WithProfile(ctx, d.target.Name)
	ctx = logging.WithRepo(ctx, d.target.Repo)
	log := logging.WithContext(ctx, d.logger)

	defer func() {
		if err := d.lock.Unlock(); err != nil {
			log.Warn("failed to release daemon lock", "lock", d.lockPath, "error", err)
		}
	}()

	d.console.KeyValue("Profile", d.target.Name)
	d.console.KeyValue("Interval", d.interval.String())
	d.console.Note("Daemon started. Press Ctrl+C to stop.")
	log.Info("daemon started",
		"interval", d.interval.String(),
		"lock", d.lockPath)

	start := time.Now()
	summary := &Summary{}
	consecutive := 0

	for ctx.Err() == nil {
		summary.Iterations++
		d.console.Note("Running backup iteration %d", summary.Iterations)

		result, err := d.backuper.Run(ctx, engine.Request{
			Profile:  d.target,
			Password: d.password,
			Trigger:  history.TriggerDaemon,
		})
		pause := d.interval
		switch {
		case err != nil:
			summary.Failures++
			consecutive++
			pause = d.retryInterval
			d.console.Failure("Backup failed: %v", err)
			log.Error("backup iteration failed",
				"iteration", summary.Iterations,
				"consecutive_failures", consecutive,
				"error", err)
			if consecutive >= failureWarnThreshold {
				d.console.Warning("%d consecutive failures. Check your configuration and network.", consecutive)
			}
		case result.Skipped:
			summary.Successes++
			consecutive = 0
			d.console.Note("No changes since the last backup.")
		default:
			summary.Successes++
			consecutive = 0
		}

		if ctx.Err() != nil {
			break
		}
		d.console.Note("Next backup in %s...", pause)
		sleep(ctx, pause)
	}

	summary.Uptime = time.Since(start)
	log.Info("daemon stopped",
		"iterations", summary.Iterations,
		"successes", summary.Successes,
		"failures", summary.Failures,
		"uptime", summary.Uptime.String())
	return summary, nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
