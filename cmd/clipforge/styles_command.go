package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipforge/internal/media"
	"clipforge/internal/subtitles"
)

func newStylesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "styles",
		Short:       "List subtitle styles and output formats",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			title := cases.Title(language.English)
			rows := make([][]string, 0, len(subtitles.Styles()))
			for _, s := range subtitles.Styles() {
				rows = append(rows, []string{
					s.Name,
					title.String(s.Name),
					s.Font,
					strconv.Itoa(s.Size),
					s.HighlightColor,
					yesNo(s.Bold),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Name", "Font", "Size", "Highlight", "Bold"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))

			formatRows := make([][]string, 0, len(media.Formats()))
			for _, f := range media.Formats() {
				formatRows = append(formatRows, []string{f.ID, fmt.Sprintf("%dx%d", f.Width, f.Height)})
			}
			fmt.Fprintln(out, renderTable([]string{"Format", "Frame"}, formatRows, nil))
			return nil
		},
	}
}

func newSubtitlesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtitles",
		Short: "Subtitle utilities",
	}
	cmd.AddCommand(newSubtitlesPreviewCommand(ctx))
	return cmd
}

func newSubtitlesPreviewCommand(ctx *commandContext) *cobra.Command {
	var styleName string
	var outputFormat string
	var aspect string
	var maxWords int
	var maxDuration float64

	cmd := &cobra.Command{
		Use:   "preview <words.json>",
		Short: "Render word timings as an ASS or SRT script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var words []subtitles.Word
			if err := readJSONFile(args[0], &words); err != nil {
				return fmt.Errorf("read words: %w", err)
			}
			if styleName == "" {
				styleName = cfg.Subtitles.DefaultStyle
			}
			styleID, err := subtitles.ParseStyle(styleName)
			if err != nil {
				return err
			}
			if maxWords == 0 {
				maxWords = cfg.Subtitles.MaxWords
			}
			limit := cfg.Subtitles.MaxDuration()
			if maxDuration > 0 {
				limit = time.Duration(maxDuration * float64(time.Second))
			}
			sync, err := subtitles.NewSynchronizer(subtitles.Options{MaxWords: maxWords, MaxDuration: limit, Style: styleID})
			if err != nil {
				return err
			}
			words = subtitles.NormalizeWords(words)

			out := cmd.OutOrStdout()
			switch strings.ToLower(outputFormat) {
			case "srt":
				return subtitles.WriteSRT(out, sync.Group(words))
			case "ass":
				format, err := media.ParseFormat(aspect)
				if err != nil {
					return err
				}
				style, err := subtitles.Lookup(styleID)
				if err != nil {
					return err
				}
				directives := sync.Directives(words)
				if err := subtitles.Validate(directives); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warn: %v\n", err)
				}
				return subtitles.WriteASS(out, directives, style, subtitles.Resolution{Width: format.Width, Height: format.Height})
			default:
				return fmt.Errorf("unsupported output %q (use ass or srt)", outputFormat)
			}
		},
	}
	cmd.Flags().StringVar(&styleName, "style", "", "Subtitle style id (defaults to subtitles.default_style)")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "ass", "Script format: ass or srt")
	cmd.Flags().StringVar(&aspect, "format", "9:16", "Output aspect ratio for the ASS play resolution")
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "Words per phrase (defaults to subtitles.max_words)")
	cmd.Flags().Float64Var(&maxDuration, "max-duration", 0, "Seconds per phrase (defaults to subtitles.max_duration_seconds)")
	return cmd
}
