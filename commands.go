package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// suitePattern selects the browser suite for go test -run.
const suitePattern = "TestPaymentE2E"

// envFileVar hands --env-file to the suite process.
const envFileVar = "PARKPAY_ENV_FILE"

// loadSettings resolves settings for a command, applying the flags listed
// in keys that the user set explicitly.
func loadSettings(cmd *cobra.Command, keys map[string]string) (*Settings, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	return LoadSettings(LoadOptions{
		EnvFile:       envFile,
		FlagOverrides: changedFlags(cmd, keys),
	})
}

// changedFlags maps explicitly set flags to their settings keys.
func changedFlags(cmd *cobra.Command, keys map[string]string) map[string]any {
	out := make(map[string]any)
	for flagName, key := range keys {
		f := cmd.Flags().Lookup(flagName)
		if f == nil || !f.Changed {
			continue
		}
		out[key] = f.Value.String()
	}
	return out
}

// overrideEnv renders overrides as sorted KEY=value pairs.
func overrideEnv(overrides map[string]any) []string {
	env := make([]string, 0, len(overrides))
	for key, val := range overrides {
		env = append(env, fmt.Sprintf("%s=%v", strings.ToUpper(key), val))
	}
	sort.Strings(env)
	return env
}

// goTestArgs builds the go test invocation for the suite.
func goTestArgs(pattern string, verbose bool, extra []string) []string {
	args := []string{"test", "-tags", "e2e", "-count=1"}
	if verbose {
		args = append(args, "-v")
	}
	if pattern == "" {
		pattern = suitePattern
	}
	args = append(args, "-run", pattern, ".")
	return append(args, extra...)
}

var runFlagKeys = map[string]string{
	"driver":   "driver",
	"headless": "headless",
	"slow-mo":  "slow_mo",
	"timeout":  "timeout",
	"base-url": "base_url",
	"plate":    "plate_no",
}

func newRunCmd() *cobra.Command {
	var (
		pattern string
		verbose bool
		keep    int
	)
	cmd := &cobra.Command{
		Use:   "run [-- go test flags]",
		Short: "Run the browser suite",
		Long: `Run the end-to-end suite with go test and summarize the artifacts it left.

Flags override the matching settings from the environment and .env.`,
		Example: `  parkpay run
  parkpay run --driver chromedp --headless=false --slow-mo 200
  parkpay run --run 'TestPaymentE2E/login_success'
  parkpay run --keep 50 -- -timeout 20m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, runFlagKeys)
			if err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return err
			}
			if !isCommandAvailable("go") {
				return errors.New("go not found in PATH; the suite runs under go test")
			}

			dirs := NewArtifactDirs(settings.ArtifactsDir)
			if lock, _ := ReadLockStatus(dirs.Root); lock != nil {
				return fmt.Errorf("a run is already in progress (PID %d, run %s)", lock.PID, lock.RunID)
			}
			before := RecoverMaxSequence(dirs.Numbered()...)

			goCmd := exec.Command("go", goTestArgs(pattern, verbose, args)...)
			goCmd.Dir = GetProjectRoot()
			goCmd.Env = append(os.Environ(), overrideEnv(changedFlags(cmd, runFlagKeys))...)
			if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
				abs, _ := filepath.Abs(envFile)
				goCmd.Env = append(goCmd.Env, envFileVar+"="+abs)
			}
			goCmd.Stdout = cmd.OutOrStdout()
			goCmd.Stderr = cmd.ErrOrStderr()

			// The suite handles interrupts itself and flushes its artifacts.
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			runErr := goCmd.Run()

			out := cmd.OutOrStdout()
			groups, err := ListArtifacts(dirs)
			if err == nil {
				var fresh []ArtifactGroup
				for _, g := range groups {
					if g.Seq > before {
						fresh = append(fresh, g)
					}
				}
				if len(fresh) > 0 {
					fmt.Fprintln(out)
					renderArtifactTable(out, fresh)
				}
			}

			if keep > 0 {
				removed, err := RotateArtifacts(dirs, keep)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: rotation failed: %v\n", err)
				} else if len(removed) > 0 {
					fmt.Fprintf(out, "Rotated %d old artifact file(s)\n", len(removed))
				}
			}

			if runErr != nil {
				var ee *exec.ExitError
				if errors.As(runErr, &ee) {
					return &exitError{code: ee.ExitCode()}
				}
				return fmt.Errorf("failed to run go test: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pattern, "run", suitePattern, "go test -run pattern")
	cmd.Flags().BoolVar(&verbose, "verbose", true, "pass -v to go test")
	cmd.Flags().IntVar(&keep, "keep", 0, "after the run, keep only the newest N sequences (0 keeps all)")
	cmd.Flags().String("driver", "", "browser driver: playwright or chromedp")
	cmd.Flags().Bool("headless", true, "run the browser headless")
	cmd.Flags().Int("slow-mo", 0, "delay after each browser action, in ms")
	cmd.Flags().Int("timeout", 0, "default page timeout, in ms")
	cmd.Flags().String("base-url", "", "site under test")
	cmd.Flags().String("plate", "", "plate number to search for")
	return cmd
}

func newArtifactsCmd() *cobra.Command {
	var (
		output     string
		failedOnly bool
		follow     bool
	)
	cmd := &cobra.Command{
		Use:     "artifacts",
		Aliases: []string{"ls"},
		Short:   "List stored artifacts grouped by sequence",
		Example: `  parkpay artifacts
  parkpay artifacts --failed -o json
  parkpay artifacts --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, nil)
			if err != nil {
				return err
			}
			dirs := NewArtifactDirs(settings.ArtifactsDir)

			if follow {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				fmt.Fprintf(cmd.OutOrStdout(), "Following %s (Ctrl+C to stop)\n\n", dirs.Root)
				return followArtifacts(ctx, cmd.OutOrStdout(), dirs)
			}

			groups, err := ListArtifacts(dirs)
			if err != nil {
				return fmt.Errorf("failed to read artifacts: %w", err)
			}
			if failedOnly {
				groups = filterFailed(groups)
			}
			return renderArtifacts(cmd.OutOrStdout(), groups, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only show failed tests")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "print artifacts as they are stored")
	return cmd
}

func filterFailed(groups []ArtifactGroup) []ArtifactGroup {
	var out []ArtifactGroup
	for _, g := range groups {
		if g.Tag == "FAIL" {
			out = append(out, g)
		}
	}
	return out
}

// renderArtifacts writes groups in the requested format.
func renderArtifacts(w io.Writer, groups []ArtifactGroup, format string) error {
	switch format {
	case "", "table":
		if len(groups) == 0 {
			fmt.Fprintln(w, "No artifacts found.")
			return nil
		}
		renderArtifactTable(w, groups)
		return nil
	case "json":
		if groups == nil {
			groups = []ArtifactGroup{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(groups)
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, json, yaml)", format)
	}
}

func renderArtifactTable(w io.Writer, groups []ArtifactGroup) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendHeader(table.Row{"SEQ", "RESULT", "TEST", "OUTCOME", "DURATION", "EVENTS", "KEPT", "SIZE"})

	failed := 0
	for _, g := range groups {
		var kinds []string
		var size int64
		for _, f := range g.Files {
			kinds = append(kinds, string(f.Kind))
			size += f.Size
		}
		sort.Strings(kinds)

		test, outcome, duration, events := g.Name, "", "", ""
		if g.Header != nil {
			test = g.Header.TestID
			outcome = string(g.Header.Outcome)
			if d := g.Header.Duration(); d > 0 {
				duration = FormatDuration(d)
			}
			events = fmt.Sprintf("%d", g.Header.Events)
		}

		tag := g.Tag
		switch tag {
		case "FAIL":
			failed++
			tag = text.FgRed.Sprint(tag)
		case "PASS":
			tag = text.FgGreen.Sprint(tag)
		default:
			tag = text.FgYellow.Sprint(tag)
		}

		t.AppendRow(table.Row{fmt.Sprintf("%03d", g.Seq), tag, test, outcome, duration, events, strings.Join(kinds, ","), FormatSize(size)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d test(s), %d failed", len(groups), failed)})
	t.Render()
}

// followArtifacts prints each numbered artifact as it lands in dirs.
func followArtifacts(ctx context.Context, w io.Writer, dirs ArtifactDirs) error {
	if err := dirs.Ensure(); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	kinds := map[string]ArtifactKind{
		dirs.Traces:      ArtifactTrace,
		dirs.Screenshots: ArtifactScreenshot,
		dirs.Videos:      ArtifactVideo,
		dirs.Logs:        ArtifactLog,
	}
	for dir := range kinds {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if line, ok := describeArtifactEvent(event, kinds); ok {
				fmt.Fprintln(w, line)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "watch error: %v\n", err)
		}
	}
}

// describeArtifactEvent renders a create event for a numbered artifact.
func describeArtifactEvent(event fsnotify.Event, kinds map[string]ArtifactKind) (string, bool) {
	if event.Op&fsnotify.Create == 0 {
		return "", false
	}
	kind, ok := kinds[filepath.Dir(event.Name)]
	if !ok {
		return "", false
	}
	m := finalNamePattern.FindStringSubmatch(filepath.Base(event.Name))
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s %-7s %-10s %s", m[1], m[2], kind, event.Name), true
}

func newCleanCmd() *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete stored artifacts",
		Long: `Delete numbered artifacts, keeping the newest --keep sequences, plus any
scratch files a crashed run left behind. With --keep 0 numbering restarts
at 001 on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, nil)
			if err != nil {
				return err
			}
			dirs := NewArtifactDirs(settings.ArtifactsDir)
			if lock, _ := ReadLockStatus(dirs.Root); lock != nil {
				return fmt.Errorf("a run is in progress (PID %d); refusing to clean", lock.PID)
			}
			removed, err := RotateArtifacts(dirs, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d file(s) from %s\n", len(removed), dirs.Root)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "number of newest sequences to keep")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the suite environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			issues := runDoctor(cmd, cmd.OutOrStdout())
			if issues > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func runDoctor(cmd *cobra.Command, w io.Writer) int {
	issues := 0

	fmt.Fprintln(w, "parkpay Environment Check")
	fmt.Fprintln(w)

	settings, err := loadSettings(cmd, nil)
	if err != nil {
		fmt.Fprintf(w, "✗ settings: %v\n", err)
		return 1
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(w, "✗ settings: %v\n", err)
		issues++
	} else {
		fmt.Fprintf(w, "✓ settings valid (site: %s, driver: %s)\n", settings.BaseURL, settings.Driver)
	}

	if settings.BaseURL != "" {
		probe := NewSiteProbe(settings.BaseURL)
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		if err := probe.Check(ctx); err != nil {
			fmt.Fprintf(w, "✗ site unreachable: %v\n", err)
			issues++
		} else {
			fmt.Fprintf(w, "✓ site reachable: %s\n", probe.URL())
		}
		cancel()
	}

	if isCommandAvailable("go") {
		fmt.Fprintf(w, "✓ go available\n")
	} else {
		fmt.Fprintf(w, "✗ go not found\n")
		issues++
	}

	switch settings.Driver {
	case "chromedp":
		if browser := findChrome(settings.ExecutablePath); browser != "" {
			fmt.Fprintf(w, "✓ chrome: %s\n", browser)
		} else {
			fmt.Fprintf(w, "✗ chrome not found (set EXECUTABLE_PATH)\n")
			issues++
		}
	default:
		fmt.Fprintf(w, "○ playwright: run 'parkpay install' if browsers are missing\n")
	}

	dirs := NewArtifactDirs(settings.ArtifactsDir)
	if err := dirs.Ensure(); err != nil {
		fmt.Fprintf(w, "✗ artifacts directory: %v\n", err)
		issues++
	} else {
		testFile := filepath.Join(dirs.Root, ".write-test")
		if f, writeErr := os.Create(testFile); writeErr != nil {
			fmt.Fprintf(w, "✗ artifacts directory not writable\n")
			issues++
		} else {
			f.Close()
			os.Remove(testFile)
			fmt.Fprintf(w, "✓ artifacts directory writable: %s\n", dirs.Root)
		}
	}

	if last := RecoverMaxSequence(dirs.Numbered()...); last > 0 {
		fmt.Fprintf(w, "○ %d stored sequence(s); numbering continues from %03d\n", last, last+1)
	}

	if lock, _ := ReadLockStatus(dirs.Root); lock != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "! A run is in progress (PID %d, run %s, driver %s)\n", lock.PID, lock.RunID, lock.Driver)
	}

	fmt.Fprintln(w)
	if issues > 0 {
		fmt.Fprintf(w, "%d issue(s) found.\n", issues)
	} else {
		fmt.Fprintln(w, "All checks passed.")
	}
	return issues
}

// findChrome returns the browser chromedp would launch, or "".
func findChrome(explicit string) string {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit
		}
		return ""
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Download the Playwright driver and Chromium",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "Installing Playwright driver and Chromium...")
			if err := InstallPlaywright(); err != nil {
				return fmt.Errorf("install failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Done.")
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "parkpay v%s\n", version)
		},
	}
}
