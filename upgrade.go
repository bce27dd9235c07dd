package main

import (
	"fmt"
	"runtime"

	selfupdate "github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

func newUpgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade parkpay to the latest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctx := cmd.Context()
			fmt.Fprintln(out, "Checking for updates...")

			latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(releaseSlug))
			if err != nil {
				return fmt.Errorf("failed to check for updates: %w", err)
			}
			if !found {
				return fmt.Errorf("no release found for %s/%s", runtime.GOOS, runtime.GOARCH)
			}

			if latest.LessOrEqual(version) {
				fmt.Fprintf(out, "Already at latest version (v%s)\n", version)
				return nil
			}

			fmt.Fprintf(out, "New version available: v%s (current: v%s)\n", latest.Version(), version)

			exe, err := selfupdate.ExecutablePath()
			if err != nil {
				return fmt.Errorf("failed to find executable path: %w", err)
			}
			if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
				return fmt.Errorf("failed to update: %w", err)
			}

			fmt.Fprintf(out, "Successfully upgraded to v%s\n", latest.Version())
			return nil
		},
	}
}
