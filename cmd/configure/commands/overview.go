package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/validation"
	"github.com/benvon/smart-crm/internal/workers"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	defaultAPIURL  = "http://localhost:8080"
	defaultTimeout = 15 * time.Second
)

type clientOptions struct {
	url     string
	token   string
	caller  string
	timeout time.Duration
}

// NewOverviewCmd creates the overview command group. Every subcommand talks to the
// admin API of a running server, never to the database directly.
func NewOverviewCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Manage per-user overview workers",
		Long:  "Enable, disable, reconfigure, inspect or trigger the overview worker of a user through the admin API.",
	}

	cmd.PersistentFlags().StringVar(&opts.url, "url", envOr("SMART_CRM_API_URL", defaultAPIURL), "Base URL of the API server")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("SMART_CRM_ADMIN_TOKEN"), "Admin bearer token (default $SMART_CRM_ADMIN_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.caller, "caller", envOr("USER", ""), "Operator name recorded in the server's audit log")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "HTTP request timeout")

	cmd.AddCommand(newEnableCmd(opts))
	cmd.AddCommand(newDisableCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newRunNowCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	return cmd
}

func (o *clientOptions) client() *adminClient {
	return newAdminClient(o.url, o.token, o.caller, o.timeout)
}

func newEnableCmd(opts *clientOptions) *cobra.Command {
	var cooldown int
	var kinds []string

	cmd := &cobra.Command{
		Use:   "enable <user-id>",
		Short: "Enable a user's overview worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			observed, err := toKinds(kinds)
			if err != nil {
				return err
			}
			req := workers.EnableRequest{CooldownSeconds: cooldown, ObservedKinds: observed}

			var status workers.WorkerStatus
			if err := opts.client().do(cmd.Context(), "POST", userPath(userID, "enable"), req, &status); err != nil {
				return fmt.Errorf("failed to enable worker: %w", err)
			}
			printStatus(cmd.OutOrStdout(), &status)
			return nil
		},
	}

	cmd.Flags().IntVar(&cooldown, "cooldown", 0, "Cooldown between cycles in seconds (default: server default)")
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "Observed entity kinds, e.g. contacts,deals,events (default: all)")
	return cmd
}

func newDisableCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <user-id>",
		Short: "Disable a user's overview worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			var status workers.WorkerStatus
			if err := opts.client().do(cmd.Context(), "POST", userPath(userID, "disable"), nil, &status); err != nil {
				return fmt.Errorf("failed to disable worker: %w", err)
			}
			printStatus(cmd.OutOrStdout(), &status)
			return nil
		},
	}
}

func newStatusCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id>",
		Short: "Show a user's overview worker state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			var status workers.WorkerStatus
			if err := opts.client().do(cmd.Context(), "GET", userPath(userID, "status"), nil, &status); err != nil {
				return fmt.Errorf("failed to get worker status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), &status)
			return nil
		},
	}
}

func newRunNowCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-now <user-id>",
		Short: "Request an immediate cycle, bypassing the cooldown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			var res workers.RunNowResult
			if err := opts.client().do(cmd.Context(), "POST", userPath(userID, "run-now"), nil, &res); err != nil {
				return fmt.Errorf("failed to request cycle: %w", err)
			}
			if res.Enqueued {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "✓ Cycle enqueued")
			} else {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "A manual cycle is already pending for this user")
			}
			return nil
		},
	}
}

func newConfigCmd(opts *clientOptions) *cobra.Command {
	var cooldown int
	var kinds []string
	var enabled bool

	cmd := &cobra.Command{
		Use:   "config <user-id>",
		Short: "Change selected worker settings",
		Long:  "Change selected worker settings. Only flags given on the command line are sent.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			var update workers.ConfigUpdate
			flags := cmd.Flags()
			if flags.Changed("cooldown") {
				update.CooldownSeconds = &cooldown
			}
			if flags.Changed("kinds") {
				if update.ObservedKinds, err = toKinds(kinds); err != nil {
					return err
				}
			}
			if flags.Changed("enabled") {
				update.Enabled = &enabled
			}
			if update.CooldownSeconds == nil && update.ObservedKinds == nil && update.Enabled == nil {
				return fmt.Errorf("at least one of --cooldown, --kinds or --enabled is required")
			}

			var status workers.WorkerStatus
			if err := opts.client().do(cmd.Context(), "PATCH", userPath(userID, "config"), update, &status); err != nil {
				return fmt.Errorf("failed to update worker config: %w", err)
			}
			printStatus(cmd.OutOrStdout(), &status)
			return nil
		},
	}

	cmd.Flags().IntVar(&cooldown, "cooldown", 0, "Cooldown between cycles in seconds")
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "Observed entity kinds")
	cmd.Flags().BoolVar(&enabled, "enabled", false, "Enable or disable the worker")
	return cmd
}

func parseUserID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", s, err)
	}
	return id, nil
}

func userPath(userID uuid.UUID, action string) string {
	return "/users/" + userID.String() + "/" + action
}

func toKinds(raw []string) ([]models.EntityKind, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	kinds := make([]models.EntityKind, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if err := validation.ValidateEntityKind(k); err != nil {
			return nil, err
		}
		kinds = append(kinds, models.EntityKind(k))
	}
	return kinds, nil
}

func printStatus(w io.Writer, s *workers.WorkerStatus) {
	kinds := make([]string, 0, len(s.ObservedKinds))
	for _, k := range s.ObservedKinds {
		kinds = append(kinds, string(k))
	}

	_, _ = fmt.Fprintf(w, "User: %s\n", s.UserID)
	_, _ = fmt.Fprintf(w, "  Enabled: %v\n", s.Enabled)
	_, _ = fmt.Fprintf(w, "  Cooldown: %ds\n", s.CooldownPeriodSeconds)
	_, _ = fmt.Fprintf(w, "  Observed kinds: %s\n", strings.Join(kinds, ", "))
	_, _ = fmt.Fprintf(w, "  Last run: %s\n", formatTime(s.LastRunAt))
	_, _ = fmt.Fprintf(w, "  Next run: %s\n", formatTime(s.NextRunAt))
	if s.LastSuccessAt != nil {
		_, _ = fmt.Fprintf(w, "  Last success: %s\n", formatTime(*s.LastSuccessAt))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
