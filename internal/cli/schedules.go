package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"homebot/internal/config"
	"homebot/internal/datetime"
	"homebot/internal/reminder"
	"homebot/internal/storage"
)

func newSchedulesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedules",
		Aliases: []string{"schedule", "reminders"},
		Short:   "Inspect and add reminders",
	}
	cmd.AddCommand(newSchedulesListCmd(opts))
	cmd.AddCommand(newSchedulesAddCmd(opts))
	return cmd
}

type listOptions struct {
	user  string
	limit int
}

func newSchedulesListCmd(root *rootOptions) *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List undelivered reminders",
		Long: `List undelivered reminders, soonest first.

Examples:
  homebot schedules list
  homebot schedules list --user alice --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			as, err := cfg.AssistantSettings()
			if err != nil {
				return err
			}
			return runSchedulesList(ctx, cmd.OutOrStdout(), st, as.Location, *opts)
		},
	}
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "only this user id")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 50, "max results")
	return cmd
}

func runSchedulesList(ctx context.Context, out io.Writer, st storage.Store, loc *time.Location, opts listOptions) error {
	var (
		rows []storage.Schedule
		err  error
	)
	if user := strings.TrimSpace(opts.user); user != "" {
		rows, err = st.ListUpcoming(ctx, user, opts.limit)
	} else {
		rows, err = st.ListUndelivered(ctx)
		if err == nil && opts.limit > 0 && len(rows) > opts.limit {
			rows = rows[:opts.limit]
		}
	}
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No pending reminders.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tWHEN\tTITLE\tNOTES")
	for _, s := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.UserID, reminder.FormatWhen(s.When, loc), s.Title, s.Notes)
	}
	return tw.Flush()
}

type addOptions struct {
	user  string
	at    string
	title string
	notes string
}

func newSchedulesAddCmd(root *rootOptions) *cobra.Command {
	opts := &addOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a reminder",
		Long: `Add a reminder for a configured user. --at accepts "2006-01-02 15:04" or a
phrase such as "tomorrow at 9am". A running server delivers it once due.

Examples:
  homebot schedules add --user alice --at "2026-03-11 17:00" --title "call mom"
  homebot schedules add -u alice --at "tomorrow at 9am" --title "dentist"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			return runSchedulesAdd(ctx, cmd.OutOrStdout(), st, cfg, time.Now(), *opts)
		},
	}
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "user id (required)")
	cmd.Flags().StringVar(&opts.at, "at", "", "when to remind (required)")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "reminder title (required)")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "extra notes")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("at")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func runSchedulesAdd(ctx context.Context, out io.Writer, st storage.Store, cfg *config.Config, now time.Time, opts addOptions) error {
	user := strings.TrimSpace(opts.user)
	if _, ok := cfg.Users[user]; !ok {
		return fmt.Errorf("unknown user %q", user)
	}
	title := strings.TrimSpace(opts.title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	as, err := cfg.AssistantSettings()
	if err != nil {
		return err
	}
	when, err := parseAt(opts.at, now, as.Location)
	if err != nil {
		return err
	}

	id, err := st.CreateSchedule(ctx, storage.NewSchedule{
		UserID: user,
		Title:  title,
		Notes:  strings.TrimSpace(opts.notes),
		When:   when,
	})
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	fmt.Fprintf(out, "Added reminder %d for %s at %s.\n", id, user, reminder.FormatWhen(when, as.Location))
	return nil
}

func parseAt(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.ParseInLocation(reminder.TimeLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, ok := datetime.New(loc).ParseDateTime(raw, now); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot understand --at %q", raw)
}
