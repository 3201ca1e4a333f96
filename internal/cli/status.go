package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/zkrelay/internal/core/domain"
	"github.com/vietddude/zkrelay/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent submission outcomes from the ledger",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of outcomes to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("status needs database.url; the in-memory ledger lives only inside the relay process")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	outcomes, err := postgres.NewOutcomeRepo(db).Recent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to query outcomes", "error", err)
		os.Exit(1)
	}

	printOutcomes(os.Stdout, outcomes)
}

func printOutcomes(out io.Writer, outcomes []*domain.Outcome) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "REQUEST\tNETWORK\tSTATUS\tRETRIES\tTX / ERROR\tSETTLED")

	for _, o := range outcomes {
		detail := o.TxHash
		if o.Status != domain.OutcomeCompleted {
			detail = o.Category
			if o.Error != "" {
				detail = o.Error
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			o.RequestID, o.Network, o.Status, o.RetryCount, detail, o.SettledAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}
