package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"clipforge/internal/notifications"
	"clipforge/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var checkWorker bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, directories and integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
					if r.Optional {
						kind = statusWarn
					}
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if cfg.LLM.APIKey == "" {
				fmt.Fprintln(out, renderStatusLine("Highlight LLM", statusWarn, "API key missing; analysis tasks will fail", colorize))
			}

			if checkWorker {
				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Worker", colorize) {
					fmt.Fprintln(out, line)
				}
				client, err := ctx.client()
				if err != nil {
					return err
				}
				health, err := client.Health(cmd.Context())
				if err != nil {
					fmt.Fprintln(out, renderStatusLine("API", statusError, err.Error(), colorize))
				} else {
					kind := statusOK
					if health.Status != "ok" {
						kind = statusWarn
					}
					fmt.Fprintln(out, renderStatusLine("API", kind, health.Status+" ("+health.QueueBackend+" queue)", colorize))
					for _, h := range health.Stages {
						stageKind := statusOK
						if !h.Ready {
							stageKind = statusError
						}
						fmt.Fprintln(out, renderStatusLine("Stage "+h.Name, stageKind, h.Detail, colorize))
					}
				}
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d required check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkWorker, "worker", false, "Also query a running worker's health endpoint")
	return cmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return errors.New("notifications.ntfy_topic is not configured")
			}
			if err := notifications.NewService(cfg.Notifications).TestNotification(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
