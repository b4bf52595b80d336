package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	syncpkg "polosync/internal/sync"
	"polosync/internal/tenant"
)

var syncCmd = &cobra.Command{
	Use:   "sync [subdomain]",
	Short: "Run a roster sync for all active polos, or a single one",
	Long: `Run the full sync pipeline: fetch and classify each polo's catalog,
fetch enrolled students per course, deduplicate by CPF and reconcile
into the database. With a subdomain argument only that polo is synced,
even if marked inactive. With --interval the command keeps running and
repeats the sync on the given period until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Duration("interval", 0, "Repeat the sync on this period (0 = run once)")
	cobra.CheckErr(viper.BindPFlag("interval", syncCmd.Flags().Lookup("interval")))
}

func runSync(_ *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	subdomain := ""
	if len(args) == 1 {
		subdomain = args[0]
	}
	selected, err := tenant.Select(d.tenants, subdomain)
	if err != nil {
		return err
	}

	interval := viper.GetDuration("interval")
	if interval <= 0 {
		return runOnce(ctx, d, selected)
	}

	d.logger.Info("periodic sync started",
		zap.Duration("interval", interval),
		zap.Int("tenants", len(selected)))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := runOnce(ctx, d, selected); err != nil {
			// Periodic mode keeps going; the next tick may succeed.
			d.logger.Error("sync pass finished with aborted tenants", zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			d.logger.Info("periodic sync stopped")
			return nil
		}
	}
}

func runOnce(ctx context.Context, d *deps, tenants []tenant.Tenant) error {
	summary := d.orch.Run(ctx, tenants)
	printSummary(summary)
	if n := summary.AbortedCount(); n > 0 {
		return fmt.Errorf("%d of %d tenants aborted", n, len(summary.Tenants))
	}
	return nil
}

func printSummary(s *syncpkg.Summary) {
	fmt.Printf("sync finished in %s (%d tenants, %d errors)\n",
		s.Duration.Round(time.Millisecond), len(s.Tenants), s.TotalErrors())
	for _, st := range s.Tenants {
		if st == nil {
			continue
		}
		if st.Aborted() {
			fmt.Printf("  %-20s ABORTED: %s\n", st.Tenant, st.AbortReason)
			continue
		}
		fmt.Printf("  %-20s courses %d+%d  students %d+%d  enrollments %d  skipped %d  errors %d\n",
			st.Tenant,
			st.CoursesCreated, st.CoursesUpdated,
			st.StudentsCreated, st.StudentsUpdated,
			st.EnrollmentsUpserted, st.Skipped, st.Errors)
	}
}
