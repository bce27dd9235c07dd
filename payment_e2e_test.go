//go:build e2e

package main

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// suite and settings are shared by every browser test, set in TestMain.
var (
	suite    *Suite
	settings *Settings
)

func TestMain(m *testing.M) {
	os.Exit(runSuite(m))
}

func runSuite(m *testing.M) int {
	logger := NewDefaultLogger()

	var err error
	settings, err = LoadSettings(LoadOptions{EnvFile: os.Getenv(envFileVar)})
	if err != nil {
		logger.Error("failed to load settings", "err", err)
		return 1
	}
	if err := settings.Validate(); err != nil {
		logger.Error("invalid settings", "err", err)
		return 1
	}

	probe := NewSiteProbe(settings.BaseURL)
	if err := probe.WaitReady(context.Background(), siteReadyTimeout); err != nil {
		logger.Error("site unavailable", "err", err)
		return 1
	}

	run := NewRunContext(settings.ArtifactsDir)
	if err := run.Dirs.Ensure(); err != nil {
		logger.Error("failed to create artifact directories", "err", err)
		return 1
	}

	lock := NewLockFile(run.Dirs.Root)
	if err := lock.Acquire(run.ID, settings.Driver); err != nil {
		logger.Error("cannot start run", "err", err)
		return 1
	}

	cleanup := NewCleanupCoordinator(logger)
	cleanup.SetLock(lock)
	stopSignals := cleanup.HandleSignals()
	defer stopSignals()
	defer cleanup.Cleanup()

	if seed := run.Init(); seed > 0 {
		logger.Info("existing artifacts found", "dir", run.Dirs.Root, "numbering continues from", fmt.Sprintf("%03d", seed+1))
	}

	driver, err := NewDriver(settings.Driver, settings.LaunchOptions())
	if err != nil {
		logger.Error("failed to start browser", "driver", settings.Driver, "err", err)
		return 1
	}
	cleanup.SetDriver(driver)

	suite = NewSuite(driver, run, settings, logger)
	cleanup.SetRecorder(suite.Recorder)

	logger.Info("starting run", "run", run.ID, "driver", driver.Name(), "site", settings.BaseURL)
	return m.Run()
}

// login signs in with the configured test account.
func login(t *testing.T, page Page) {
	t.Helper()
	lp := NewLoginPage(page, settings.BaseURL)
	require.NoError(t, lp.Navigate())
	require.NoError(t, lp.Login(settings.Username, settings.Password))
	require.NoError(t, lp.AssertLoginSuccess())
}

// openParkingTickets follows the footer link to the ticket page.
func openParkingTickets(t *testing.T, page Page) *ParkingTicketPage {
	t.Helper()
	pp := NewParkingTicketPage(page, settings.BaseURL)
	require.NoError(t, pp.NavigateFromFooter())
	require.NoError(t, pp.AssertOnPage())
	return pp
}

func TestPaymentE2E(t *testing.T) {
	t.Run("login_success", func(t *testing.T) {
		suite.Run(t, func(t *testing.T, page Page) {
			login(t, page)
		})
	})

	t.Run("navigate_to_parking_ticket", func(t *testing.T) {
		suite.Run(t, func(t *testing.T, page Page) {
			login(t, page)
			pp := openParkingTickets(t, page)

			require.NoError(t, pp.EnterPlateNumber(settings.PlateNo))
			require.NoError(t, pp.ClickSearch())
			require.NoError(t, pp.SelectFirstTicket())
			require.NoError(t, pp.ClickPay())
			require.NoError(t, pp.SelectPaymentMethod("credit_card"))
			require.NoError(t, pp.SelectInvoiceOption("barcode"))
		})
	})

	t.Run("full_payment_flow", func(t *testing.T) {
		suite.Run(t, func(t *testing.T, page Page) {
			login(t, page)
			openParkingTickets(t, page)

			t.Skip("card entry, 3DS and receipt steps need the TapPay iframe selectors confirmed")
		})
	})

	t.Run("query_plate_no_results", func(t *testing.T) {
		suite.Run(t, func(t *testing.T, page Page) {
			login(t, page)
			openParkingTickets(t, page)

			t.Skip("no-result query needs a plate guaranteed to have no tickets and its message selector confirmed")
		})
	})
}
