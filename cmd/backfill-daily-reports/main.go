package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/autosync_backend/autosync"
	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/models"
	"github.com/mmdatafocus/autosync_backend/store"
	"github.com/mmdatafocus/autosync_backend/utils"
)

func main() {
	clientID := flag.String("client-id", "", "Optional: backfill only one tenant. If empty, backfills every tenant.")
	from := flag.String("from", "", "Optional: start date (YYYY-MM-DD). Defaults to the tenant creation date.")
	to := flag.String("to", "", "Optional: last date (YYYY-MM-DD, inclusive). Defaults to yesterday in the tenant timezone.")
	dryRun := flag.Bool("dry-run", false, "List the dates that would be closed without writing anything.")
	force := flag.Bool("force", false, "Also backfill tenants with auto-close disabled.")
	flag.Parse()

	cfg, err := config.LoadAutoSyncConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), "backfill-daily-reports")
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	gateway := store.NewGormGateway(db)
	engine := autosync.NewEngine(gateway, config.GetLogger(), cfg)

	var clients []models.Client
	if id := strings.TrimSpace(*clientID); id != "" {
		client, err := gateway.GetTenant(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load tenant %s: %v\n", id, err)
			os.Exit(1)
		}
		if client == nil {
			fmt.Fprintf(os.Stderr, "tenant %s not found\n", id)
			os.Exit(1)
		}
		clients = append(clients, *client)
	} else if clients, err = gateway.ListTenants(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to list tenants: %v\n", err)
		os.Exit(1)
	}
	if len(clients) == 0 {
		fmt.Fprintln(os.Stderr, "no tenants found to backfill")
		return
	}

	failures := 0
	for _, c := range clients {
		tenantCtx := utils.SetClientIdInContext(ctx, c.ID)
		sched, err := engine.ResolveSchedule(tenantCtx, c.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tenant %s: failed to resolve schedule: %v\n", c.ID, err)
			failures++
			continue
		}
		if !sched.AutoCloseEnabled && !*force {
			fmt.Printf("Skipping tenant=%s (auto-close disabled)\n", c.ID)
			continue
		}
		loc := sched.Location
		today := sched.Today(engine.Clock.Now())

		start := utils.ConvertToDate(c.CreatedAt, loc)
		if v := strings.TrimSpace(*from); v != "" {
			if start, err = utils.ParseDate(v, loc); err != nil {
				fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
				os.Exit(2)
			}
		}
		end := today.AddDate(0, 0, -1)
		if v := strings.TrimSpace(*to); v != "" {
			if end, err = utils.ParseDate(v, loc); err != nil {
				fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
				os.Exit(2)
			}
		}
		// Today stays open until its close minute.
		if !end.Before(today) {
			end = today.AddDate(0, 0, -1)
		}

		fmt.Printf("Backfilling daily_reports tenant=%s timezone=%s from=%s to=%s dry_run=%t\n",
			c.ID, loc, start.Format(utils.DateLayout), end.Format(utils.DateLayout), *dryRun)

		created, skipped := 0, 0
		for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
			if *dryRun {
				existing, err := gateway.GetDailyReportByDate(tenantCtx, c.ID, utils.DateKey(date))
				if err != nil {
					fmt.Fprintf(os.Stderr, "tenant %s %s: %v\n", c.ID, date.Format(utils.DateLayout), err)
					failures++
					continue
				}
				if existing == nil {
					fmt.Printf("  would close %s\n", date.Format(utils.DateLayout))
					created++
				} else {
					skipped++
				}
				continue
			}
			_, ok, err := engine.CloseDay(tenantCtx, c.ID, date, loc)
			if err != nil {
				fmt.Fprintf(os.Stderr, "tenant %s %s: %v\n", c.ID, date.Format(utils.DateLayout), err)
				failures++
				continue
			}
			if ok {
				created++
			} else {
				skipped++
			}
		}
		fmt.Printf("tenant=%s created=%d already_closed=%d\n", c.ID, created, skipped)
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "Backfill finished with %d failures\n", failures)
		os.Exit(1)
	}
	fmt.Println("Backfill complete")
}
