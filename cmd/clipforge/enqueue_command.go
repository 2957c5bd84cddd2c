package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"clipforge/internal/queue"
)

type enqueueFlags struct {
	id         string
	source     string
	language   string
	format     string
	style      string
	highlights string
	clip       string
	words      string
	jsonOut    bool
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a task to the worker queue",
	}
	cmd.AddCommand(newEnqueueKindCommand(ctx, "analyze <video-id>", "Transcribe a video and pick highlights", queue.KindAnalyze))
	cmd.AddCommand(newEnqueueKindCommand(ctx, "clips <video-id>", "Render subtitled highlight clips", queue.KindGenerateClips))
	cmd.AddCommand(newEnqueueKindCommand(ctx, "burn <video-id>", "Burn karaoke subtitles into an existing clip", queue.KindBurnSubtitles))
	return cmd
}

func newEnqueueKindCommand(ctx *commandContext, use, short string, kind queue.Kind) *cobra.Command {
	var flags enqueueFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(kind, args[0], flags)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			task, err := client.Enqueue(cmd.Context(), enqueueBody{ID: flags.id, Kind: string(kind), Payload: payload})
			if err != nil {
				var apiErr *apiError
				if errors.As(err, &apiErr) && apiErr.Field != "" {
					return fmt.Errorf("%s (field %s)", apiErr.Message, apiErr.Field)
				}
				return err
			}
			if flags.jsonOut {
				return writeJSON(cmd, task)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s task %s\n", task.Kind, task.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.id, "id", "", "Task id (generated when empty)")
	cmd.Flags().StringVar(&flags.language, "language", "", "Spoken language hint for transcription")
	cmd.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the queued task as JSON")
	switch kind {
	case queue.KindAnalyze, queue.KindGenerateClips:
		cmd.Flags().StringVar(&flags.source, "source", "", "Source video path (defaults to the uploads directory)")
	}
	switch kind {
	case queue.KindGenerateClips, queue.KindBurnSubtitles:
		cmd.Flags().StringVar(&flags.format, "format", "9:16", "Output aspect ratio")
		cmd.Flags().StringVar(&flags.style, "style", "", "Subtitle style id")
	}
	if kind == queue.KindGenerateClips {
		cmd.Flags().StringVar(&flags.highlights, "highlights", "", "JSON file with highlights to use instead of the model")
	}
	if kind == queue.KindBurnSubtitles {
		cmd.Flags().StringVar(&flags.clip, "clip", "", "Clip to burn subtitles into")
		cmd.Flags().StringVar(&flags.words, "words", "", "JSON file with word timings (transcribes the clip when empty)")
		_ = cmd.MarkFlagRequired("clip")
	}
	return cmd
}

func buildPayload(kind queue.Kind, videoID string, flags enqueueFlags) (queue.Payload, error) {
	payload := queue.Payload{queue.FieldVideoID: strings.TrimSpace(videoID)}
	setIf := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			payload[key] = v
		}
	}
	setIf(queue.FieldLanguage, flags.language)
	setIf(queue.FieldFormatID, flags.format)
	setIf(queue.FieldStyleID, flags.style)

	if flags.source != "" {
		abs, err := filepath.Abs(flags.source)
		if err != nil {
			return nil, err
		}
		payload[queue.FieldSourcePath] = abs
	}
	if flags.clip != "" {
		abs, err := filepath.Abs(flags.clip)
		if err != nil {
			return nil, err
		}
		payload[queue.FieldClipPath] = abs
	}
	if flags.highlights != "" {
		var list []map[string]any
		if err := readJSONFile(flags.highlights, &list); err != nil {
			return nil, fmt.Errorf("read highlights: %w", err)
		}
		payload[queue.FieldHighlights] = list
	}
	if flags.words != "" {
		var list []map[string]any
		if err := readJSONFile(flags.words, &list); err != nil {
			return nil, fmt.Errorf("read words: %w", err)
		}
		payload[queue.FieldWords] = list
	}
	if kind == queue.KindAnalyze {
		delete(payload, queue.FieldFormatID)
		delete(payload, queue.FieldStyleID)
	}
	return payload, nil
}

func readJSONFile(path string, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
