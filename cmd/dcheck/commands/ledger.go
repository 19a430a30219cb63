package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dcheck/errors"
	"github.com/teranos/dcheck/ledger"
	"github.com/teranos/dcheck/logger"
)

// LedgerCmd groups the ledger inspection and correction commands
var LedgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect, follow or correct a run ledger",
	Long: `Every run directory holds ledger.jsonl, the append-only record of completed
tables. Nothing in it is ever edited or removed: a wrong record is retired by
appending a supersede marker, after which the table runs again on --resume.`,
}

var ledgerShowCmd = &cobra.Command{
	Use:     "show",
	Short:   "Show every ledger record",
	Example: `  dcheck ledger show --run-dir ./out/nightly`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showLedger(cmd.OutOrStdout(), ledgerRunDir, ledgerJSON)
	},
}

var ledgerFollowCmd = &cobra.Command{
	Use:     "follow",
	Short:   "Stream ledger records as a run appends them",
	Example: `  dcheck ledger follow --run-dir ./out/nightly`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return followLedger(cmd.Context(), cmd.OutOrStdout(), ledgerRunDir, ledgerJSON)
	},
}

var ledgerSupersedeCmd = &cobra.Command{
	Use:   "supersede",
	Short: "Retire a completed table so it runs again on resume",
	Long: `Append a supersede marker for one table (or, with --all, for every table of
the run). The earlier record stays in the ledger for audit; the table is no
longer considered complete.`,
	Example: `  dcheck ledger supersede --run-dir ./out/nightly --table main.sales.orders --reason "source reloaded"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return supersedeLedger(cmd.OutOrStdout(), ledgerRunDir, supersedeTable, supersedeReason, supersedeAll)
	},
}

var (
	ledgerRunDir    string
	ledgerJSON      bool
	supersedeTable  string
	supersedeReason string
	supersedeAll    bool
)

func init() {
	for _, c := range []*cobra.Command{ledgerShowCmd, ledgerFollowCmd, ledgerSupersedeCmd} {
		c.Flags().StringVar(&ledgerRunDir, "run-dir", "", "Run directory (<output>/<run-id>)")
		_ = c.MarkFlagRequired("run-dir")
	}
	ledgerShowCmd.Flags().BoolVar(&ledgerJSON, "json", false, "Print records as JSON lines")
	ledgerFollowCmd.Flags().BoolVar(&ledgerJSON, "json", false, "Print records as JSON lines")
	ledgerSupersedeCmd.Flags().StringVar(&supersedeTable, "table", "", "Table to retire")
	ledgerSupersedeCmd.Flags().StringVar(&supersedeReason, "reason", "", "Why the record is retired (kept in the ledger)")
	ledgerSupersedeCmd.Flags().BoolVar(&supersedeAll, "all", false, "Retire every completed table of the run")
	_ = ledgerSupersedeCmd.MarkFlagRequired("reason")

	LedgerCmd.AddCommand(ledgerShowCmd)
	LedgerCmd.AddCommand(ledgerFollowCmd)
	LedgerCmd.AddCommand(ledgerSupersedeCmd)
}

func ledgerPath(runDir string) string {
	return filepath.Join(runDir, ledger.FileName)
}

// showLedger replays the ledger read-only. A torn final line is ignored
// here; the next run truncates it.
func showLedger(w io.Writer, runDir string, asJSON bool) error {
	data, err := os.ReadFile(ledgerPath(runDir))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("no ledger in %s", runDir)
		}
		return errors.Wrap(err, "failed to read ledger")
	}
	if n := len(data); n > 0 && data[n-1] != '\n' {
		data = data[:bytes.LastIndexByte(data, '\n')+1]
	}
	state, err := ledger.Replay(bytes.NewReader(data))
	if err != nil {
		return err
	}

	records := state.Records()
	if asJSON {
		for _, rec := range records {
			if err := printRecordJSON(w, rec); err != nil {
				return err
			}
		}
		return nil
	}

	tableData := pterm.TableData{{"Seq", "Kind", "Table", "Severity", "Fingerprint", "Time", "Current"}}
	for _, rec := range records {
		current := ""
		if auth, ok := state.Authoritative(rec.RunID, rec.TableID); ok && auth.Seq == rec.Seq {
			current = "yes"
		}
		tableData = append(tableData, recordRow(rec, current))
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)

	runID := filepath.Base(runDir)
	fmt.Fprintf(w, "%d record(s), %d table(s) complete\n", len(records), len(state.Completed(runID)))
	return nil
}

func followLedger(ctx context.Context, w io.Writer, runDir string, asJSON bool) error {
	path := ledgerPath(runDir)
	if !asJSON {
		fmt.Fprintln(w, pterm.Info.Sprintf("Following %s (Ctrl+C to stop)", path))
	}
	return ledger.Follow(ctx, path, func(rec ledger.Record) error {
		if asJSON {
			return printRecordJSON(w, rec)
		}
		row := recordRow(rec, "")
		fmt.Fprintf(w, "%s  %-9s %-30s %-8s %s\n", row[0], row[1], row[2], row[3], row[4])
		return nil
	})
}

// supersedeLedger appends a supersede marker. The run id is the run
// directory's name.
func supersedeLedger(w io.Writer, runDir, table, reason string, all bool) error {
	if table == "" && !all {
		return errors.New("either --table or --all is required")
	}
	if table != "" && all {
		return errors.New("--table and --all are mutually exclusive")
	}
	path := ledgerPath(runDir)
	if _, err := os.Stat(path); err != nil {
		return errors.NewNotFoundError("no ledger in %s", runDir)
	}

	runID := filepath.Base(filepath.Clean(runDir))
	led, err := ledger.Open(path, runID, logger.ComponentLogger("ledger"))
	if err != nil {
		return err
	}
	defer led.Close()

	if table != "" {
		if _, ok := led.IsComplete(runID, table); !ok {
			return errors.NewNotFoundError("table %s is not complete in run %s", table, runID)
		}
	}
	if err := led.Supersede(runID, table, reason); err != nil {
		return err
	}

	target := table
	if all {
		target = "every table"
	}
	fmt.Fprintln(w, pterm.Success.Sprintf("Retired %s in run %s; it runs again on --resume", target, runID))
	return nil
}

func recordRow(rec ledger.Record, current string) []string {
	severity := ""
	if rec.Kind == ledger.KindCompleted {
		severity = rec.Severity.String()
	}
	table := rec.TableID
	if rec.Kind == ledger.KindSupersede && table == "" {
		table = "(whole run)"
	}
	fingerprint := rec.Fingerprint
	if len(fingerprint) > 19 {
		fingerprint = fingerprint[:19]
	}
	if rec.Kind == ledger.KindSupersede {
		fingerprint = rec.Reason
	}
	return []string{
		strconv.FormatInt(rec.Seq, 10),
		string(rec.Kind),
		table,
		severity,
		fingerprint,
		rec.Timestamp.Local().Format(time.DateTime),
		current,
	}
}

func printRecordJSON(w io.Writer, rec ledger.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode ledger record")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
