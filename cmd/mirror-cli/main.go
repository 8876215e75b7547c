// Package main provides a CLI tool for driving the marketplace listing mirror.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/marketmirror/marketmirror/internal/config"
	"github.com/marketmirror/marketmirror/internal/events"
	"github.com/marketmirror/marketmirror/internal/inventory"
	"github.com/marketmirror/marketmirror/internal/inventory/postgres"
	"github.com/marketmirror/marketmirror/internal/listings"
	"github.com/marketmirror/marketmirror/internal/logging"
	"github.com/marketmirror/marketmirror/internal/marketplace"
	"github.com/marketmirror/marketmirror/internal/metrics"
	"github.com/marketmirror/marketmirror/internal/retry"
)

func main() {
	configFile := flag.String("config", "", "Config file path (YAML)")
	jsonOut := flag.Bool("json", false, "Output results as JSON")

	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	s, cleanup, err := buildSyncer(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		cmdStatus(ctx, s)
	case "init":
		cmdInit(ctx, s, *jsonOut)
	case "listings", "ls":
		cmdListings(ctx, s, *jsonOut)
	case "create":
		cmdCreate(ctx, s, cmdArgs)
	case "activate":
		cmdActivate(ctx, s, cmdArgs, true)
	case "deactivate":
		cmdActivate(ctx, s, cmdArgs, false)
	case "clear", "rm":
		cmdClear(ctx, s, cmdArgs)
	case "set-version":
		cmdSetVersion(ctx, s, cmdArgs)
	case "associate":
		cmdAssociate(ctx, s, cmdArgs)
	case "get":
		cmdGet(ctx, s, cmdArgs, *jsonOut)
	case "refresh":
		cmdRefresh(ctx, s)
	case "watch":
		cmdWatch(s)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Marketplace Listing Mirror CLI

Usage: mirror-cli [flags] <command> [args]

Flags:
  -config <path>  Config file (YAML); env vars override it
  -json           Output results as JSON

Commands:
  status                       Show marketplace connection status
  init                         Probe merchant status and load listings
  listings, ls                 List all cached listings
  create <folderID>            Create a listing for a folder
  activate <folderID>          Publish a listing
  deactivate <folderID>        Unpublish a listing
  clear, rm <folderID>         Delete a listing
  set-version <folderID> <versionFolderID>
                               Designate the active version folder
  associate <folderID> <listingID>
                               Bind an existing listing id to a folder
  get <folderID>               Refresh and show one listing
  refresh                      Refresh all listings from the server
  watch                        Stream cache and status events as JSON
  help                         Show this help message

Environment:
  MARKETPLACE_URL, MARKETPLACE_AUTH_TOKEN, DATABASE_URL,
  LOG_LEVEL, LOG_FORMAT, METRICS_ADDR (see config package)`)
}

func buildSyncer(cfg *config.Config) (*listings.Syncer, func(), error) {
	client := marketplace.New(marketplace.Config{
		BaseURL:           cfg.MarketplaceURL,
		Timeout:           cfg.RequestTimeout,
		RequestsPerMinute: cfg.RequestsPerMinute,
		AuthToken:         cfg.AuthToken,
	})

	var hierarchy *inventory.Tree
	cleanup := func() {}
	if cfg.DatabaseURL != "" {
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to inventory database: %w", err)
		}
		tree, err := store.BuildTree(context.Background())
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("loading folder hierarchy: %w", err)
		}
		hierarchy = tree
		cleanup = func() { store.Close() }
	}

	syncerCfg := listings.Config{
		Remote: client,
		Poll: retry.Config{
			MaxAttempts: cfg.PollMaxAttempts,
			InitialWait: cfg.PollInitialWait,
			MaxWait:     cfg.PollMaxWait,
			Multiplier:  2.0,
			Jitter:      0.1,
		},
	}
	if hierarchy != nil {
		syncerCfg.Hierarchy = hierarchy
	}
	return listings.NewSyncer(syncerCfg), cleanup, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	logging.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Error("metrics server failed", zap.Error(err))
	}
}

func cmdStatus(ctx context.Context, s *listings.Syncer) {
	status := s.Initialize(ctx)
	s.Wait()
	fmt.Printf("Marketplace status: %s\n", status)
}

func cmdInit(ctx context.Context, s *listings.Syncer, jsonOut bool) {
	status := s.Initialize(ctx)
	s.Wait()
	fmt.Printf("Marketplace status: %s\n", status)
	if status == listings.StatusMerchant {
		printListings(s, jsonOut)
	}
}

func cmdListings(ctx context.Context, s *listings.Syncer, jsonOut bool) {
	refreshAll(ctx, s)
	printListings(s, jsonOut)
}

// refreshAll retries the bulk fetch a few times; a concurrent bulk
// refresh rejection is retryable, a config error is not.
func refreshAll(ctx context.Context, s *listings.Syncer) {
	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		if !s.GetAllListings(ctx) {
			return retry.Retryable(fmt.Errorf("bulk refresh already running"))
		}
		s.Wait()
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error refreshing listings: %v\n", err)
		os.Exit(1)
	}
}

func printListings(s *listings.Syncer, jsonOut bool) {
	records := s.Cache().Records()
	if len(records) == 0 {
		fmt.Println("No listings cached")
		return
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ListingID < records[j].ListingID
	})

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(records)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LISTING ID\tFOLDER\tVERSION FOLDER\tACTIVE\tEDIT URL")
	fmt.Fprintln(w, "----------\t------\t--------------\t------\t--------")
	for _, r := range records {
		active := ""
		if r.Active {
			active = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ListingID, r.FolderID, r.VersionFolderID, active, r.EditURL)
	}
	w.Flush()
}

func cmdCreate(ctx context.Context, s *listings.Syncer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: mirror-cli create <folderID>")
		os.Exit(1)
	}
	runFolderOp(s, args[0], "Created listing", func() bool {
		return s.CreateListing(ctx, args[0])
	})
}

func cmdActivate(ctx context.Context, s *listings.Syncer, args []string, activate bool) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: mirror-cli activate|deactivate <folderID>")
		os.Exit(1)
	}
	refreshAll(ctx, s)
	verb := "Activated"
	if !activate {
		verb = "Deactivated"
	}
	runFolderOp(s, args[0], verb+" listing", func() bool {
		return s.ActivateListing(ctx, args[0], activate)
	})
}

func cmdClear(ctx context.Context, s *listings.Syncer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: mirror-cli clear <folderID>")
		os.Exit(1)
	}
	refreshAll(ctx, s)
	runFolderOp(s, args[0], "Cleared listing", func() bool {
		return s.ClearListing(ctx, args[0])
	})
}

func cmdSetVersion(ctx context.Context, s *listings.Syncer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: mirror-cli set-version <folderID> <versionFolderID>")
		os.Exit(1)
	}
	refreshAll(ctx, s)
	runFolderOp(s, args[0], "Set version folder", func() bool {
		return s.SetVersionFolder(ctx, args[0], args[1])
	})
}

func cmdAssociate(ctx context.Context, s *listings.Syncer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: mirror-cli associate <folderID> <listingID>")
		os.Exit(1)
	}
	listingID, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid listing id: %s\n", args[1])
		os.Exit(1)
	}
	refreshAll(ctx, s)
	runFolderOp(s, args[0], "Associated listing", func() bool {
		return s.AssociateListing(ctx, args[0], listingID)
	})
}

func cmdGet(ctx context.Context, s *listings.Syncer, args []string, jsonOut bool) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: mirror-cli get <folderID>")
		os.Exit(1)
	}
	refreshAll(ctx, s)
	folderID := args[0]
	if !s.GetListing(ctx, folderID) {
		fmt.Fprintf(os.Stderr, "Folder %s is not listed\n", folderID)
		os.Exit(1)
	}
	s.Wait()

	record, ok := s.Cache().Get(folderID)
	if !ok {
		fmt.Fprintf(os.Stderr, "No record for folder %s after refresh\n", folderID)
		os.Exit(1)
	}
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(record)
		return
	}
	fmt.Printf("Folder:         %s\n", record.FolderID)
	fmt.Printf("Listing ID:     %d\n", record.ListingID)
	fmt.Printf("Version folder: %s\n", record.VersionFolderID)
	fmt.Printf("Active:         %v\n", record.Active)
	fmt.Printf("Edit URL:       %s\n", record.EditURL)
}

func cmdRefresh(ctx context.Context, s *listings.Syncer) {
	refreshAll(ctx, s)
	fmt.Printf("Refreshed %d listings\n", s.Cache().Len())
}

// runFolderOp submits the operation and reports acceptance plus any error
// event delivered during reconciliation.
func runFolderOp(s *listings.Syncer, folderID, verb string, op func() bool) {
	ch := s.Events().Subscribe()
	defer s.Events().Unsubscribe(ch)

	if !op() {
		fmt.Fprintf(os.Stderr, "Rejected: folder %s (busy, missing, or precondition failed)\n", folderID)
		os.Exit(1)
	}
	s.Wait()

	for {
		select {
		case ev := <-ch:
			if ev.Type == events.EventErrorReport && ev.FolderID == folderID {
				fmt.Fprintf(os.Stderr, "Failed: %s (status %d)\n", folderID, ev.Code)
				if len(ev.Detail) > 0 {
					detail, _ := json.Marshal(ev.Detail)
					fmt.Fprintf(os.Stderr, "  %s\n", detail)
				}
				os.Exit(1)
			}
		default:
			fmt.Printf("%s: %s\n", verb, folderID)
			return
		}
	}
}

func cmdWatch(s *listings.Syncer) {
	ch := s.Events().Subscribe()
	defer s.Events().Unsubscribe(ch)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.Initialize(ctx) != listings.StatusMerchant {
		fmt.Fprintln(os.Stderr, "Not a merchant or marketplace unreachable")
	}

	fmt.Fprintln(os.Stderr, "Watching for events (Ctrl-C to stop)...")
	for {
		select {
		case <-ctx.Done():
			s.Wait()
			return
		case ev := <-ch:
			data, err := events.MarshalEvent(ev)
			if err != nil {
				continue
			}
			fmt.Println(string(data))
		}
	}
}
