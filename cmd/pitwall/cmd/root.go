// Package cmd defines the pitwall command line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pitwall/pitwall/internal/feed/historical"
	"github.com/pitwall/pitwall/internal/schedule"
)

// RootCmd is the root cobra command. All sub-commands are registered here.
func RootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:           "pitwall",
		Short:         "pitwall ingests and normalizes live-timing data.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := parseLogLevel(logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	cmd.AddCommand(
		getScheduleCmd(),
		listTopicsCmd(),
		getTopicContentCmd(),
		getT0Cmd(),
		getMessagesCmd(),
		getProcessedDocumentsCmd(),
		ingestCollectionsCmd(),
		ingestSessionCmd(),
		ingestMeetingCmd(),
		ingestSeasonCmd(),
		liveCmd(),
	)

	return cmd
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

func intArg(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return n, nil
}

// sessionArgs are the positional (year, meeting_key, session_key) arguments
// shared by the archive commands.
type sessionArgs struct {
	year       int
	meetingKey int
	sessionKey int
}

func parseSessionArgs(args []string) (sessionArgs, error) {
	year, err := intArg("year", args[0])
	if err != nil {
		return sessionArgs{}, err
	}
	meetingKey, err := intArg("meeting_key", args[1])
	if err != nil {
		return sessionArgs{}, err
	}
	sessionKey, err := intArg("session_key", args[2])
	if err != nil {
		return sessionArgs{}, err
	}
	return sessionArgs{year: year, meetingKey: meetingKey, sessionKey: sessionKey}, nil
}

// sessionReader resolves a session's archive URL and builds a reader over it.
func sessionReader(ctx context.Context, sa sessionArgs) (*historical.Reader, string, error) {
	sched := schedule.NewClient("", slog.Default())
	url, err := sched.SessionURL(ctx, sa.year, sa.meetingKey, sa.sessionKey)
	if err != nil {
		return nil, "", err
	}
	return historical.NewReader(historical.NewHTTPFetcher(url), slog.Default()), url, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
