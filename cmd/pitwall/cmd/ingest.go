package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitwall/pitwall/internal/collections"
	"github.com/pitwall/pitwall/internal/config"
	"github.com/pitwall/pitwall/internal/feed/historical"
	"github.com/pitwall/pitwall/internal/pipeline"
	"github.com/pitwall/pitwall/internal/platform/docstore"
	"github.com/pitwall/pitwall/internal/platform/objstore"
	"github.com/pitwall/pitwall/internal/schedule"
)

// ingestFlags are the pipeline tuning flags shared by the ingest commands.
type ingestFlags struct {
	parallel    bool
	maxWorkers  int
	batchSize   int
	fromArchive bool
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	defaults := pipeline.DefaultConfig()
	cmd.Flags().BoolVar(&f.parallel, "parallel", false, "Process stateless collections over a worker pool")
	cmd.Flags().IntVar(&f.maxWorkers, "max-workers", defaults.MaxWorkers, "Worker pool size in parallel mode")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", defaults.BatchSize, "Messages per worker batch")
	cmd.Flags().BoolVar(&f.fromArchive, "from-archive", false, "Replay from the raw archive bucket instead of the upstream archive")
}

func (f *ingestFlags) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Parallel:   f.parallel,
		MaxWorkers: f.maxWorkers,
		BatchSize:  f.batchSize,
	}
}

// ingestor backfills recorded sessions into the document store.
type ingestor struct {
	sched    *schedule.Client
	registry *collections.Registry
	store    *docstore.Store
	archive  *objstore.Store
	pcfg     pipeline.Config
	logger   *slog.Logger
}

func newIngestor(ctx context.Context, flags ingestFlags) (*ingestor, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	store, err := docstore.Connect(ctx, docstore.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting document store: %w", err)
	}

	var archive *objstore.Store
	if flags.fromArchive {
		archive, err = objstore.Connect(ctx, objstore.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3SSL,
			Bucket:    cfg.RawBucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting raw archive: %w", err)
		}
	}

	return &ingestor{
		sched:    schedule.NewClient("", logger),
		registry: collections.NewRegistry(),
		store:    store,
		archive:  archive,
		pcfg:     flags.pipelineConfig(),
		logger:   logger,
	}, nil
}

func (in *ingestor) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := in.store.Close(ctx); err != nil {
		in.logger.Warn("closing document store", "error", err)
	}
}

// ingestSession replays one recorded session and upserts the derived
// documents. A nil names slice selects every collection.
func (in *ingestor) ingestSession(ctx context.Context, year, meetingKey, sessionKey int, names []string) error {
	logger := in.logger.With("year", year, "meeting_key", meetingKey, "session_key", sessionKey)

	var fetcher historical.Fetcher
	if in.archive != nil {
		fetcher = in.archive.SessionFetcher(year, meetingKey, sessionKey)
		logger.Info("ingesting session", "source", "raw archive bucket")
	} else {
		url, err := in.sched.SessionURL(ctx, year, meetingKey, sessionKey)
		if err != nil {
			return err
		}
		fetcher = historical.NewHTTPFetcher(url)
		logger.Info("ingesting session", "url", url)
	}

	reader := historical.NewReader(fetcher, in.logger)
	t0, err := reader.ResolveT0(ctx)
	if err != nil {
		return fmt.Errorf("resolving session start: %w", err)
	}
	logger.Info("session clock anchored", "t0", t0.Format(time.RFC3339Nano))

	topics, err := in.registry.SourceTopics(names)
	if err != nil {
		return err
	}
	msgs, err := reader.Messages(ctx, topics, t0)
	if err != nil {
		return err
	}
	logger.Info("replay loaded", "topics", len(topics), "messages", len(msgs))

	pipe, err := pipeline.New(in.pcfg, in.registry, names, meetingKey, sessionKey, in.logger)
	if err != nil {
		return err
	}
	docs, err := pipe.ProcessMessages(ctx, msgs)
	if err != nil {
		return err
	}

	written := 0
	ordered := make([]string, 0, len(docs))
	for name := range docs {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)
	for _, collection := range ordered {
		if err := in.store.Write(ctx, collection, docs[collection]); err != nil {
			return fmt.Errorf("writing %s documents: %w", collection, err)
		}
		written += len(docs[collection])
	}

	logger.Info("session ingested", "documents", written, "skipped", pipe.Skipped())
	return nil
}

// ingestMeeting ingests every session of a meeting. Per-session failures are
// logged and counted, not fatal to the rest of the meeting.
func (in *ingestor) ingestMeeting(ctx context.Context, year, meetingKey int) (failed, total int, err error) {
	sessionKeys, err := in.sched.SessionKeys(ctx, year, meetingKey)
	if err != nil {
		return 0, 0, err
	}
	for _, sessionKey := range sessionKeys {
		total++
		if err := in.ingestSession(ctx, year, meetingKey, sessionKey, nil); err != nil {
			if ctx.Err() != nil {
				return failed, total, ctx.Err()
			}
			failed++
			in.logger.Error("session ingestion failed",
				"year", year,
				"meeting_key", meetingKey,
				"session_key", sessionKey,
				"error", err,
			)
		}
	}
	return failed, total, nil
}

func ingestCollectionsCmd() *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest-collections <year> <meeting_key> <session_key> <collection>...",
		Short: "Ingest selected collections of one recorded session.",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := parseSessionArgs(args)
			if err != nil {
				return err
			}
			in, err := newIngestor(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer in.Close()
			return in.ingestSession(cmd.Context(), sa.year, sa.meetingKey, sa.sessionKey, args[3:])
		},
	}
	flags.register(cmd)
	return cmd
}

func ingestSessionCmd() *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest-session <year> <meeting_key> <session_key>",
		Short: "Ingest every collection of one recorded session.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := parseSessionArgs(args)
			if err != nil {
				return err
			}
			in, err := newIngestor(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer in.Close()
			return in.ingestSession(cmd.Context(), sa.year, sa.meetingKey, sa.sessionKey, nil)
		},
	}
	flags.register(cmd)
	return cmd
}

func ingestMeetingCmd() *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest-meeting <year> <meeting_key>",
		Short: "Ingest every session of one meeting.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := intArg("year", args[0])
			if err != nil {
				return err
			}
			meetingKey, err := intArg("meeting_key", args[1])
			if err != nil {
				return err
			}
			in, err := newIngestor(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer in.Close()

			failed, total, err := in.ingestMeeting(cmd.Context(), year, meetingKey)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sessions failed", failed, total)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func ingestSeasonCmd() *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest-season <year>",
		Short: "Ingest every session of a season.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := intArg("year", args[0])
			if err != nil {
				return err
			}
			in, err := newIngestor(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer in.Close()

			meetingKeys, err := in.sched.MeetingKeys(cmd.Context(), year)
			if err != nil {
				return err
			}
			var failed, total int
			for _, meetingKey := range meetingKeys {
				f, t, err := in.ingestMeeting(cmd.Context(), year, meetingKey)
				failed += f
				total += t
				if err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d sessions failed", failed, total)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
