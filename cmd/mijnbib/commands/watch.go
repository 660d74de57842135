package commands

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"time"

	"mijnbib/lib/bibliotheek"
	"mijnbib/lib/serviceutil"
	"mijnbib/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	watchInterval *time.Duration
	watchOut      *string
)

func init() {
	watchInterval = watchCmd.Flags().Duration("interval", time.Hour*6, "How often to take a snapshot.")
	watchOut = watchCmd.Flags().String("out", "", "A file to write each snapshot to instead of stdout.")
	rootCmd.AddCommand(watchCmd)
}

// watchCmd periodically snapshots the whole profile as JSON, which is what
// home-automation setups poll for due dates and ready holds. A lost session
// is fatal rather than retried, the supervisor owns restart policy.
var watchCmd = &cobra.Command{
	Use:   "watch [--interval <duration>] [--out <file>]",
	Short: "Periodically snapshots all memberships, loans and holds as JSON.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		telemetry.InstrumentPerfStats(ctx)

		client, _ := createClient(ctx)

		snapshot(ctx, client)
		ticker := time.NewTicker(*watchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "shutting down")
				return
			case <-ticker.C:
				snapshot(ctx, client)
			}
		}
	},
}

func snapshot(ctx context.Context, client *bibliotheek.Client) {
	info, err := client.AllInfo(ctx)
	if err != nil {
		var temporary *bibliotheek.TemporarySiteError
		if errors.As(err, &temporary) {
			slog.WarnContext(ctx, "portal failure, keeping the session for the next tick", "err", err)
			return
		}
		serviceutil.Fatal("failed to snapshot profile", err)
	}

	payload := struct {
		TakenAt time.Time                          `json:"taken_at"`
		Info    map[string]bibliotheek.AccountInfo `json:"info"`
	}{TakenAt: time.Now(), Info: info}

	if *watchOut == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(payload)
	} else {
		var blob []byte
		blob, err = json.MarshalIndent(payload, "", "  ")
		if err == nil {
			err = os.WriteFile(*watchOut, blob, 0644)
		}
	}
	if err != nil {
		serviceutil.Fatal("failed to write snapshot", err)
	}
	slog.InfoContext(ctx, "snapshot taken", "accounts", len(info))
}
