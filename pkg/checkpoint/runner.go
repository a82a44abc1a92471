package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/camlf/academic-hub/pkg/logging"
	"github.com/camlf/academic-hub/pkg/pagination"
	"github.com/rs/zerolog"
)

// Runner runs stored-mode fetches that continue from saved checkpoints.
type Runner struct {
	paginator *pagination.Paginator
	store     Store
	lockTTL   time.Duration
	logger    zerolog.Logger
}

// NewRunner creates a runner saving checkpoints to store.
func NewRunner(p *pagination.Paginator, store Store) *Runner {
	return &Runner{
		paginator: p,
		store:     store,
		lockTTL:   DefaultLockTTL,
		logger:    logging.NewLogger("checkpoint"),
	}
}

// Fetch runs req while holding the lock of its checkpoint key.
//
// With resume set, the fetch continues from the saved checkpoint if one
// exists and starts fresh otherwise. A result that reached the row ceiling
// saves its resume token; an exhausted result, or one without a stored
// version, clears the checkpoint.
func (r *Runner) Fetch(ctx context.Context, req pagination.FetchRequest, resume bool) (*pagination.Result, error) {
	key := Key(req)

	unlock, err := r.store.Lock(ctx, key, r.lockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("Failed to release checkpoint lock")
		}
	}()

	var token *pagination.ResumeToken
	if resume {
		token, err = r.store.Load(ctx, key)
		switch {
		case errors.Is(err, ErrNotFound):
			r.logger.Info().Str("key", key).Msg("No checkpoint, starting fresh")
		case err != nil:
			return nil, err
		}
	}

	var res *pagination.Result
	if token != nil {
		r.logger.Info().
			Str("key", key).
			Int64("rows_delivered", token.RowsDelivered).
			Msg("Resuming from checkpoint")
		res, err = r.paginator.Resume(ctx, req, token)
	} else {
		res, err = r.paginator.Fetch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	switch res.State {
	case pagination.StateCapReached:
		if err := r.store.Save(ctx, key, res.Resume); err != nil {
			return res, fmt.Errorf("save checkpoint: %w", err)
		}
		r.logger.Info().
			Str("key", key).
			Int64("rows_delivered", res.Resume.RowsDelivered).
			Msg("Row ceiling reached, checkpoint saved")
	default:
		if err := r.store.Delete(ctx, key); err != nil {
			return res, fmt.Errorf("clear checkpoint: %w", err)
		}
	}
	return res, nil
}
