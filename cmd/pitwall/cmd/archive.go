package cmd

import (
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitwall/pitwall/internal/collections"
	"github.com/pitwall/pitwall/internal/feed"
	"github.com/pitwall/pitwall/internal/pipeline"
	"github.com/pitwall/pitwall/internal/schedule"
)

func getScheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-schedule <year>",
		Short: "Print the season schedule as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := intArg("year", args[0])
			if err != nil {
				return err
			}
			idx, err := schedule.NewClient("", slog.Default()).Index(cmd.Context(), year)
			if err != nil {
				return err
			}
			return printJSON(idx)
		},
	}
}

func listTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-topics <year> <meeting_key> <session_key>",
		Short: "List the recorded topics of a session.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := parseSessionArgs(args)
			if err != nil {
				return err
			}
			reader, _, err := sessionReader(cmd.Context(), sa)
			if err != nil {
				return err
			}
			topics, err := reader.Topics(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(topics)
		},
	}
}

// topicLine is one decoded recording line for display.
type topicLine struct {
	SessionTime string `json:"session_time"`
	Content     any    `json:"content"`
}

func getTopicContentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-topic-content <year> <meeting_key> <session_key> <topic>",
		Short: "Print the decoded recording of one topic.",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := parseSessionArgs(args)
			if err != nil {
				return err
			}
			reader, _, err := sessionReader(cmd.Context(), sa)
			if err != nil {
				return err
			}
			lines, err := reader.TopicContent(cmd.Context(), args[3])
			if err != nil {
				return err
			}

			out := make([]topicLine, 0, len(lines))
			for _, line := range lines {
				stamp, payload, ok := feed.ParseLine(line)
				if !ok {
					continue
				}
				content, err := feed.Decode(payload)
				if err != nil {
					slog.Warn("skipping undecodable line", "topic", args[3], "error", err)
					continue
				}
				out = append(out, topicLine{SessionTime: stamp, Content: content})
			}
			return printJSON(out)
		},
	}
}

func getT0Cmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-t0 <year> <meeting_key> <session_key>",
		Short: "Resolve the session clock anchor.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := parseSessionArgs(args)
			if err != nil {
				return err
			}
			reader, _, err := sessionReader(cmd.Context(), sa)
			if err != nil {
				return err
			}
			t0, err := reader.ResolveT0(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"t0": t0.Format(time.RFC3339Nano)})
		},
	}
}

// messageJSON is the display form of a replayed message.
type messageJSON struct {
	Topic       string    `json:"topic"`
	Timepoint   time.Time `json:"timepoint"`
	SessionTime string    `json:"session_time"`
	Content     any       `json:"content"`
}

func getMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-messages <year> <meeting_key> <session_key> <topic>...",
		Short: "Replay the merged message sequence of one or more topics.",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := parseSessionArgs(args)
			if err != nil {
				return err
			}
			reader, _, err := sessionReader(cmd.Context(), sa)
			if err != nil {
				return err
			}
			t0, err := reader.ResolveT0(cmd.Context())
			if err != nil {
				return err
			}
			msgs, err := reader.Messages(cmd.Context(), args[3:], t0)
			if err != nil {
				return err
			}

			out := make([]messageJSON, 0, len(msgs))
			for _, msg := range msgs {
				out = append(out, messageJSON{
					Topic:       msg.Topic,
					Timepoint:   msg.Timepoint,
					SessionTime: msg.SessionTime.String(),
					Content:     msg.Content,
				})
			}
			return printJSON(out)
		},
	}
}

func getProcessedDocumentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get-processed-documents <year> <meeting_key> <session_key> <collection>...",
		Short: "Derive documents for one or more collections and print them.",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			sa, err := parseSessionArgs(args)
			if err != nil {
				return err
			}
			names := args[3:]

			registry := collections.NewRegistry()
			topics, err := registry.SourceTopics(names)
			if err != nil {
				return err
			}
			reader, _, err := sessionReader(cmd.Context(), sa)
			if err != nil {
				return err
			}
			t0, err := reader.ResolveT0(cmd.Context())
			if err != nil {
				return err
			}
			msgs, err := reader.Messages(cmd.Context(), topics, t0)
			if err != nil {
				return err
			}

			pipe, err := pipeline.New(pipeline.Config{}, registry, names, sa.meetingKey, sa.sessionKey, slog.Default())
			if err != nil {
				return err
			}
			docs, err := pipe.ProcessMessages(cmd.Context(), msgs)
			if err != nil {
				return err
			}
			return printJSON(docs)
		},
	}
}
