// Package cmd is the command-line front end for the sqlsentinel daemon
// and its operator commands.
package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ftahirops/sqlsentinel/config"
	"github.com/ftahirops/sqlsentinel/engine"
	"github.com/ftahirops/sqlsentinel/model"
	"github.com/ftahirops/sqlsentinel/remediate"
)

// Version is set at build time via ldflags.
var Version = "0.3.0"

// Exit codes.
const (
	ExitOK            = 0
	ExitFatal         = 1
	ExitPartial       = 2
	ExitSafetyRefusal = 3
)

func printUsage() {
	fmt.Fprintf(os.Stderr, `sqlsentinel v%s — query performance regression monitor for SQL Server

Usage:
  sqlsentinel [OPTIONS] COMMAND

Commands:
  run                 Run the monitoring daemon (collection + analysis loops)
  collect-once        Run a single collection cycle, print the summary, exit
  analyze-once        Run a single analysis cycle, print the summary, exit
  rebuild-baselines   Recompute all baselines from sample history, exit
  remediate           Execute one remediation script through the safety gates
  test-channels       Send a test message through every alert channel
  export              Print recent events and remediation audit as JSON
  version             Print version and exit

Options:
  -config PATH        Configuration file (default: sqlsentinel.yaml)
  -target SELECTOR    Restrict to one instance or instance/database
                      (collect-once and analyze-once only)

Remediate options:
  -fingerprint ID     Fingerprint the action applies to (required)
  -type NAME          Remediation type, e.g. update_statistics (required)
  -script SQL         Action script to execute (required)
  -by NAME            Operator name for the audit trail (required)

Exit codes:
  0  success
  1  fatal error (bad configuration, store failure)
  2  partial failure (some targets failed)
  3  remediation refused by a safety gate

Examples:
  sqlsentinel -config /etc/sqlsentinel.yaml run
  sqlsentinel collect-once
  sqlsentinel -target prod-sql-01 collect-once
  sqlsentinel -target prod-sql-01/orders analyze-once
  sqlsentinel rebuild-baselines
  sqlsentinel -target prod-sql-01/orders remediate -fingerprint 42 \
      -type update_statistics -script "EXEC sp_updatestats" -by jdoe
  sqlsentinel test-channels
  sqlsentinel export | jq '.events'
`, Version)
}

// Run parses flags, dispatches the command, and returns the process
// exit code.
func Run() int {
	var (
		configPath    string
		target        string
		fingerprintID int64
		remType       string
		remScript     string
		remBy         string
	)
	flag.StringVar(&configPath, "config", "sqlsentinel.yaml", "Configuration file path")
	flag.StringVar(&target, "target", "", "Target selector: instance or instance/database")
	flag.Int64Var(&fingerprintID, "fingerprint", 0, "Fingerprint id for remediate")
	flag.StringVar(&remType, "type", "", "Remediation type for remediate")
	flag.StringVar(&remScript, "script", "", "Action script for remediate")
	flag.StringVar(&remBy, "by", "", "Operator name for remediate")
	flag.Usage = printUsage
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		printUsage()
		return ExitFatal
	}
	if command == "version" {
		fmt.Printf("sqlsentinel v%s\n", Version)
		return ExitOK
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFatal
	}
	log := engine.NewLogger(cfg.Logging)
	defer log.Sync()

	eng, err := engine.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFatal
	}
	defer eng.Close()

	ctx := context.Background()
	switch command {
	case "run":
		if err := eng.RunDaemon(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitFatal
		}
		return ExitOK

	case "collect-once":
		sum, err := eng.CollectOnce(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitFatal
		}
		printJSON(sum)
		if sum.AllFailed() {
			return ExitFatal
		}
		if sum.Partial() {
			return ExitPartial
		}
		return ExitOK

	case "analyze-once":
		sum, err := eng.AnalyzeOnce(ctx, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitFatal
		}
		printJSON(sum)
		if sum.TargetsFailed > 0 && sum.TargetsOK == 0 {
			return ExitFatal
		}
		if sum.TargetsFailed > 0 {
			return ExitPartial
		}
		return ExitOK

	case "rebuild-baselines":
		n, err := eng.RebuildBaselines(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitFatal
		}
		fmt.Printf("rebuilt %d baselines\n", n)
		return ExitOK

	case "remediate":
		return runRemediate(ctx, cfg, eng, target, fingerprintID, remType, remScript, remBy)

	case "test-channels":
		results := eng.Registry().Test(ctx)
		if len(results) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no alert channels configured")
			return ExitFatal
		}
		code := ExitOK
		for name, err := range results {
			if err != nil {
				fmt.Printf("%-10s FAIL  %v\n", name, err)
				code = ExitPartial
			} else {
				fmt.Printf("%-10s OK\n", name)
			}
		}
		return code

	case "export":
		if err := eng.Export(ctx, os.Stdout, 24*time.Hour); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitFatal
		}
		return ExitOK
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
	printUsage()
	return ExitFatal
}

// runRemediate executes one operator-initiated remediation.
func runRemediate(ctx context.Context, cfg config.Config, eng *engine.Engine, selector string, fingerprintID int64, typ, script, by string) int {
	if selector == "" || fingerprintID == 0 || typ == "" || script == "" || by == "" {
		fmt.Fprintln(os.Stderr, "Error: remediate requires -target instance/database, -fingerprint, -type, -script, and -by")
		return ExitFatal
	}
	targets := cfg.SelectTargets(selector)
	if len(targets) != 1 {
		fmt.Fprintf(os.Stderr, "Error: selector %q must match exactly one target\n", selector)
		return ExitFatal
	}

	res, err := eng.Remediate(ctx, remediate.Request{
		Target:        targets[0].Target,
		FingerprintID: fingerprintID,
		Suggestion: model.RemediationSuggestion{
			Type:         model.RemediationType(typ),
			Safety:       model.SafetyForType(model.RemediationType(typ)),
			ActionScript: script,
		},
		InitiatedBy: by,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitFatal
	}
	printJSON(res)
	switch {
	case res.Refused:
		return ExitSafetyRefusal
	case res.Err != "":
		return ExitFatal
	}
	return ExitOK
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
}
