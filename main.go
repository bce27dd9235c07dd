package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "parkpay",
		Short: "End-to-end browser suite for the qparking payment site",
		Long: `parkpay runs the qparking payment flow end to end in a real browser and
keeps per-test evidence: traces and logs for every test, screenshots and
videos for failures. Artifacts are numbered across runs.

Artifacts:
  artifacts/
    traces/       001_PASS_<test>_trace.zip
    logs/         001_PASS_<test>.log
    screenshots/  002_FAIL_<test>.png
    videos/       002_FAIL_<test>.webm`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cmd.Name() != "upgrade" {
				startUpdateCheck()
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			printUpdateNotice(cmd.ErrOrStderr())
		},
	}
	root.SetVersionTemplate("parkpay v{{.Version}}\n")
	root.PersistentFlags().String("env-file", "", "dotenv file to load (default: .env in the project root)")

	root.AddCommand(
		newRunCmd(),
		newArtifactsCmd(),
		newCleanCmd(),
		newDoctorCmd(),
		newInstallCmd(),
		newVersionCmd(),
		newUpgradeCmd(),
	)
	return root
}

// exitError carries a child process exit status through cobra.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func exitCode(err error) int {
	if e, ok := err.(*exitError); ok {
		return e.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}
