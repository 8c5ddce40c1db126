package blob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
)

// ReferenceSource lists the handles that committed rows still point at.
type ReferenceSource interface {
	ListResumeHandles(ctx context.Context) ([]string, error)
}

// Sweeper removes blobs that no row references and that are older than
// MaxAge. It covers the crash window between staging and commit.
type Sweeper struct {
	stager   Stager
	refs     ReferenceSource
	maxAge   time.Duration
	lockPath string
	logger   *slog.Logger
	now      func() time.Time
}

func NewSweeper(stager Stager, refs ReferenceSource, maxAge time.Duration, lockPath string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{stager: stager, refs: refs, maxAge: maxAge, lockPath: lockPath, logger: logger, now: time.Now}
}

// Sweep runs one pass and returns the number of blobs removed. When another
// process holds the lock the pass is skipped.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	lock := flock.New(s.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return 0, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !locked {
		s.logger.Info("orphan sweep skipped, lock held elsewhere", slog.String("lock", s.lockPath))
		return 0, nil
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Error("release sweep lock", slog.Any("err", err))
		}
	}()

	// Blobs are listed before references: a blob committed in between is
	// then seen as referenced.
	blobs, err := s.stager.List(ctx)
	if err != nil {
		return 0, err
	}
	handles, err := s.refs.ListResumeHandles(ctx)
	if err != nil {
		return 0, fmt.Errorf("list references: %w", err)
	}
	referenced := make(map[string]struct{}, len(handles))
	for _, h := range handles {
		referenced[h] = struct{}{}
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, b := range blobs {
		if _, ok := referenced[b.Handle]; ok {
			continue
		}
		if b.ModTime.After(cutoff) {
			continue
		}
		if err := s.stager.Discard(ctx, b.Handle); err != nil {
			s.logger.Error("discard orphan blob", slog.String("handle", b.Handle), slog.Any("err", err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("orphan sweep removed blobs", slog.Int("count", removed))
	}

	return removed, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("orphan sweep failed", slog.Any("err", err))
			}
		}
	}
}
