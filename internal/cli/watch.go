package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smart-pulse-M1-GI/frontend/internal/backend"
	"github.com/smart-pulse-M1-GI/frontend/internal/monitor"
	"github.com/smart-pulse-M1-GI/frontend/internal/stream"
	"github.com/smart-pulse-M1-GI/frontend/internal/vitals"
)

var (
	watchPatient  string
	watchToken    string
	watchMail     string
	watchPassword string
	watchFree     bool
	watchActivity string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a patient's live heart rate in the terminal",
	Long: `Open a live screen for one patient and print a line for every update.
With --start-free or --activity a monitoring session is started; it is
stopped when the command exits.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchFree && watchActivity != "" {
		return fmt.Errorf("--start-free and --activity are mutually exclusive")
	}

	cfg, log, _, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log)
	creds, err := watchCredentials(ctx, api)
	if err != nil {
		return err
	}

	feed, err := stream.NewFeed(cfg.Stream, creds.Token, log)
	if err != nil {
		return err
	}

	screen := monitor.NewScreen(api, monitor.Options{
		PatientID:         watchPatient,
		Credentials:       creds,
		Feed:              feed,
		ReconnectDelay:    cfg.Stream.ReconnectDelay,
		WindowCapacity:    cfg.Window.Capacity,
		DefaultThresholds: vitals.Thresholds{Min: cfg.Thresholds.DefaultMin, Max: cfg.Thresholds.DefaultMax},
		WarningBand:       func() int { return cfg.Thresholds.WarningBand },
		Logger:            log,
	})
	if err := screen.Open(ctx); err != nil {
		screen.Close()
		return fmt.Errorf("opening patient %s: %w", watchPatient, err)
	}
	defer screen.Close()

	_, updates := screen.Subscribe()

	switch {
	case watchFree:
		id, err := screen.StartFreeSession(ctx)
		if err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
		log.Info("Free session started", zap.String("session_id", id))
	case watchActivity != "":
		id, err := screen.StartActivity(ctx, watchActivity)
		if err != nil {
			return fmt.Errorf("starting activity: %w", err)
		}
		log.Info("Activity session started", zap.String("session_id", id), zap.String("activity_id", watchActivity))
	}

	out := cmd.OutOrStdout()
	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			line := formatSnapshot(snap)
			if line != last {
				fmt.Fprintln(out, line)
				last = line
			}
		}
	}
}

func watchCredentials(ctx context.Context, api *backend.Client) (backend.Credentials, error) {
	if watchToken != "" {
		return backend.Credentials{Token: watchToken}, nil
	}
	if token := os.Getenv("SMARTPULSE_TOKEN"); token != "" {
		return backend.Credentials{Token: token}, nil
	}
	if watchMail == "" || watchPassword == "" {
		return backend.Credentials{}, errors.New("provide --token, SMARTPULSE_TOKEN or --mail and --password")
	}
	return api.Login(ctx, watchMail, watchPassword)
}

// formatSnapshot renders a snapshot as one status line.
func formatSnapshot(s monitor.Snapshot) string {
	line := fmt.Sprintf("[%s] bpm=%s avg=%s min=%s max=%s range=%d-%d level=%s",
		s.Connection,
		orDash(s.Current), orDash(s.Average), orDash(s.Min), orDash(s.Max),
		s.Thresholds.Min, s.Thresholds.Max, s.Level,
	)
	if s.OutOfRange {
		line += " OUT OF RANGE"
	}
	if s.Session.Active() {
		line += fmt.Sprintf(" session=%s %s %ds", s.Session.SessionID, s.Session.Kind, s.Session.Elapsed)
		if s.Session.Planned > 0 {
			line += fmt.Sprintf("/%ds", s.Session.Planned)
		}
	}
	if s.Error != "" {
		line += " error=" + s.Error
	}
	return line
}

func orDash(v *int) string {
	if v == nil {
		return "--"
	}
	return strconv.Itoa(*v)
}

func init() {
	watchCmd.Flags().StringVar(&watchPatient, "patient", "", "Patient id")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "Bearer token")
	watchCmd.Flags().StringVar(&watchMail, "mail", "", "Log in with this e-mail when no token is given")
	watchCmd.Flags().StringVar(&watchPassword, "password", "", "Password for --mail")
	watchCmd.Flags().BoolVar(&watchFree, "start-free", false, "Start a free monitoring session")
	watchCmd.Flags().StringVar(&watchActivity, "activity", "", "Start a session for this activity id")
	watchCmd.MarkFlagRequired("patient")
}
