package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"homebot/internal/storage"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "List reminders that are due but not yet delivered",
		Long: `List reminders that are due but not yet delivered. This only reads the
store; a running server delivers them on its next sweep.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
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
			return runSweep(ctx, cmd.OutOrStdout(), st, time.Now())
		},
	}
}

func runSweep(ctx context.Context, out io.Writer, st storage.Store, now time.Time) error {
	ids, err := st.ListDueUndelivered(ctx, now)
	if err != nil {
		return fmt.Errorf("list due: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "Nothing due.")
		return nil
	}
	fmt.Fprintf(out, "Due (%d):\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "  %d\n", id)
	}
	return nil
}
