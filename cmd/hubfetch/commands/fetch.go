package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/camlf/academic-hub/internal/app"
	"github.com/camlf/academic-hub/pkg/checkpoint"
	"github.com/camlf/academic-hub/pkg/pagination"
	"github.com/camlf/academic-hub/pkg/query"
	"github.com/camlf/academic-hub/pkg/table"
	"github.com/spf13/cobra"
)

const (
	modeInterpolated = query.ModeInterpolated
	modeStored       = query.ModeStored
)

type fetchOptions struct {
	namespace   string
	dataset     string
	start       string
	end         string
	interval    string
	pageRowCap  int
	subSecond   bool
	raw         bool
	skipSort    bool
	workers     int
	output      string
	resume      bool
	resumeToken string
}

func newFetchCommand(state *rootState, mode query.Mode) *cobra.Command {
	opts := &fetchOptions{}

	cmd := &cobra.Command{
		Use:   string(mode) + " SOURCE...",
		Short: fmt.Sprintf("Fetch %s data of one or more data views as CSV", mode),
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, state, mode, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.namespace, "namespace", "n", "", "hub namespace")
	flags.StringVarP(&opts.dataset, "dataset", "d", "", "dataset name, resolved to a namespace by the config")
	flags.StringVar(&opts.start, "start", "", "start index (timestamp)")
	flags.StringVar(&opts.end, "end", "", "end index (timestamp)")
	flags.IntVar(&opts.pageRowCap, "page-row-cap", 0, "rows per page (0: configured default)")
	flags.BoolVar(&opts.raw, "raw", false, "keep digital state columns unmerged")
	flags.BoolVar(&opts.skipSort, "skip-sort", false, "keep multi-source rows in arrival order")
	flags.IntVar(&opts.workers, "workers", 0, "concurrent sources (0: configured default)")
	flags.StringVarP(&opts.output, "output", "o", "", "output file (default: stdout)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	cmd.MarkFlagsMutuallyExclusive("namespace", "dataset")

	if mode == modeInterpolated {
		flags.StringVar(&opts.interval, "interval", "", "resampling interval (HH:MM:SS)")
		flags.BoolVar(&opts.subSecond, "sub-second", false, "accept sub-second intervals")
		_ = cmd.MarkFlagRequired("interval")
	} else {
		flags.BoolVar(&opts.resume, "resume", false, "continue from the saved checkpoint")
		flags.StringVar(&opts.resumeToken, "resume-token", "", "continue from an encoded resume token")
		cmd.MarkFlagsMutuallyExclusive("resume", "resume-token")
	}

	return cmd
}

func runFetch(cmd *cobra.Command, state *rootState, mode query.Mode, opts *fetchOptions, sources []string) error {
	ctx := cmd.Context()
	cfg := state.config

	namespace := opts.namespace
	if opts.dataset != "" {
		ns, err := cfg.NamespaceOf(opts.dataset)
		if err != nil {
			return err
		}
		namespace = ns
	}
	if namespace == "" {
		return errors.New("one of --namespace or --dataset is required")
	}

	reqs := make([]pagination.FetchRequest, len(sources))
	for i, source := range sources {
		reqs[i] = pagination.FetchRequest{
			SourceID:   source,
			Namespace:  namespace,
			StartIndex: opts.start,
			EndIndex:   opts.end,
			Interval:   opts.interval,
			PageRowCap: opts.pageRowCap,
			Mode:       mode,
			SubSecond:  opts.subSecond,
			Raw:        opts.raw,
		}
	}
	if (opts.resume || opts.resumeToken != "") && len(reqs) > 1 {
		return errors.New("resuming supports a single source")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var tbl *table.Table
	if len(reqs) == 1 {
		tbl, err = fetchOne(ctx, cmd.ErrOrStderr(), a, reqs[0], opts)
	} else {
		tbl, err = fetchMany(ctx, cmd.ErrOrStderr(), a, reqs, opts)
	}
	if err != nil {
		return err
	}
	return writeOutput(cmd.OutOrStdout(), opts.output, tbl)
}

func fetchOne(ctx context.Context, stderr io.Writer, a *app.App, req pagination.FetchRequest, opts *fetchOptions) (*table.Table, error) {
	var res *pagination.Result
	var err error

	runner := a.Runner()
	switch {
	case opts.resumeToken != "":
		token, decodeErr := pagination.DecodeResumeToken(opts.resumeToken)
		if decodeErr != nil {
			return nil, decodeErr
		}
		res, err = a.Paginator.Resume(ctx, req, token)
	case req.Mode == modeStored && runner != nil:
		res, err = runner.Fetch(ctx, req, opts.resume)
	case opts.resume:
		return nil, errors.New("--resume requires a checkpoint backend (checkpoint.backend: redis or sqlite)")
	default:
		res, err = a.Paginator.Fetch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	switch res.State {
	case pagination.StateNoStoredVersion:
		fmt.Fprintf(stderr, "%s: no stored data\n", req.SourceID)
	case pagination.StateCapReached:
		if err := reportResume(stderr, req.SourceID, res.Resume, runner != nil); err != nil {
			return nil, err
		}
	}
	return res.Table, nil
}

func fetchMany(ctx context.Context, stderr io.Writer, a *app.App, reqs []pagination.FetchRequest, opts *fetchOptions) (*table.Table, error) {
	batchOpts := []pagination.BatchOption{pagination.WithWorkers(opts.workers)}
	if opts.skipSort {
		batchOpts = append(batchOpts, pagination.WithSkipSort())
	}

	res, err := pagination.NewBatchFetcher(a.Paginator, batchOpts...).FetchAll(ctx, reqs)
	if err != nil {
		return nil, err
	}

	for _, source := range res.NoStoredVersion {
		fmt.Fprintf(stderr, "%s: no stored data\n", source)
	}
	for _, req := range reqs {
		token, ok := res.Resume[req.SourceID]
		if !ok {
			continue
		}
		if a.Checkpoint != nil {
			if err := a.Checkpoint.Save(ctx, checkpoint.Key(req), token); err != nil {
				return nil, err
			}
		}
		if err := reportResume(stderr, req.SourceID, token, a.Checkpoint != nil); err != nil {
			return nil, err
		}
	}
	return res.Table, nil
}

func reportResume(w io.Writer, sourceID string, token *pagination.ResumeToken, saved bool) error {
	if saved {
		fmt.Fprintf(w, "%s: row ceiling reached after %d rows, checkpoint saved (rerun with --resume)\n",
			sourceID, token.RowsDelivered)
		return nil
	}
	encoded, err := token.Encode()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: row ceiling reached after %d rows, continue with --resume-token %s\n",
		sourceID, token.RowsDelivered, encoded)
	return nil
}

func writeOutput(stdout io.Writer, path string, tbl *table.Table) error {
	if path == "" {
		return tbl.WriteCSV(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := tbl.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
