// Command wizard is the interactive station data export tool: pick
// stations, check availability, pick parameters and a date range,
// review the volume estimate, and download the CSV.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/meteoci/station-export/internal/adapter/meteoapi"
	"github.com/meteoci/station-export/internal/adapter/ops"
	"github.com/meteoci/station-export/internal/adapter/terminal"
	"github.com/meteoci/station-export/internal/config"
	"github.com/meteoci/station-export/internal/domain"
	"github.com/meteoci/station-export/internal/download"
	"github.com/meteoci/station-export/internal/observability"
	"github.com/meteoci/station-export/internal/selection"
	"github.com/meteoci/station-export/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := meteoapi.NewClient(cfg.APIBaseURL, cfg.APITimeout, logger, metrics)
	presenter := terminal.NewPresenter(os.Stdout)
	store := selection.New(cfg.DefaultGranularity)

	availability := workflow.NewAvailabilityCoordinator(client, cfg.CacheSize, logger, metrics)
	estimation := workflow.NewEstimationCoordinator(client, logger, metrics)
	engine := workflow.NewEngine(ctx, store, client, availability, estimation, presenter, logger, metrics)
	orchestrator := download.NewOrchestrator(client, download.DirSink{Dir: cfg.OutputDir}, presenter, logger, metrics)

	var opsServer *ops.Server
	if cfg.OpsAddr != "" {
		opsServer = ops.NewServer(cfg.OpsAddr, engine, logger)
		go func() {
			if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ops server error", "error", err)
			}
		}()
	}

	if err := engine.Bootstrap(ctx, cfg.StationType); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	presenter.SetCatalog(engine.Catalog())

	runREPL(ctx, engine, orchestrator, presenter)

	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown error", "error", err)
		}
	}
	logger.Info("bye")
}

func runREPL(ctx context.Context, engine *workflow.Engine, orchestrator *download.Orchestrator, presenter *terminal.Presenter) {
	fmt.Println("station data export wizard — type 'help' for commands")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleCommand(ctx, engine, orchestrator, presenter, line); quit {
				return
			}
		}
	}
}

func handleCommand(ctx context.Context, engine *workflow.Engine, orchestrator *download.Orchestrator, presenter *terminal.Presenter, line string) bool {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]
	store := engine.Store()

	switch cmd {
	case "help":
		printHelp()
	case "stations":
		for _, s := range engine.Catalog().Stations {
			mark := " "
			if store.Snapshot().StationSelected(s.ID) {
				mark = "*"
			}
			fmt.Printf(" %s %-20s %-20s %s\n", mark, s.ID, s.Label, s.Type)
		}
	case "params":
		snap := store.Snapshot()
		for _, cat := range engine.Catalog().Categories {
			fmt.Printf(" %s (%s)\n", cat.Label, cat.Key)
			for _, p := range cat.Params {
				mark := " "
				if snap.ParamSelected(p.ID) {
					mark = "*"
				}
				fmt.Printf("   %s %-15s %s\n", mark, p.ID, p.Label)
			}
		}
	case "sel":
		if len(args) != 1 {
			fmt.Println("usage: sel <station-id>")
			break
		}
		store.ToggleStation(args[0])
	case "all":
		ids := make([]string, 0)
		for _, s := range engine.Catalog().Stations {
			ids = append(ids, s.ID)
		}
		store.SelectAllVisible(ids)
	case "par":
		if len(args) == 0 {
			fmt.Println("usage: par <param-id> [on|off]")
			break
		}
		var forced *bool
		if len(args) == 2 {
			v := args[1] == "on"
			forced = &v
		}
		store.ToggleParam(args[0], forced)
	case "gran":
		if len(args) != 1 {
			fmt.Println("usage: gran <U|X|H|J>")
			break
		}
		g, err := domain.ParseGranularity(strings.ToUpper(args[0]))
		if err != nil {
			fmt.Println(err)
			break
		}
		store.SetGranularity(g)
	case "from", "to":
		if len(args) != 1 {
			fmt.Printf("usage: %s <YYYY-MM-DD>\n", cmd)
			break
		}
		t, err := time.Parse(domain.DateFormat, args[0])
		if err != nil {
			fmt.Println("invalid date, expected YYYY-MM-DD")
			break
		}
		if cmd == "from" {
			store.SetStart(t)
		} else {
			store.SetEnd(t)
		}
	case "quick":
		if len(args) != 1 {
			fmt.Println("usage: quick <days>")
			break
		}
		days, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("usage: quick <days>")
			break
		}
		_ = engine.QuickPeriod(days) // rejection is surfaced as a toast
	case "clear":
		store.ClearAll()
	case "status":
		snap := store.Snapshot()
		presenter.RenderAvailability(engine.Availability())
		presenter.RenderEstimate(engine.Estimate())
		presenter.RenderState(snap, engine.Gates())
	case "download":
		if orchestrator.Running() {
			fmt.Println("a download is already in progress")
			break
		}
		if file, err := orchestrator.Run(ctx, store.Snapshot()); err == nil {
			fmt.Printf("wrote %s\n", file)
		}
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q — type 'help'\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Print(`commands:
  stations            list stations ('*' = selected)
  sel <id>            toggle a station
  all                 select every listed station
  params              list parameters by category
  par <id> [on|off]   toggle (or force) a parameter
  gran <U|X|H|J>      set granularity (minute, 6-min, hourly, daily)
  from <YYYY-MM-DD>   set range start
  to <YYYY-MM-DD>     set range end
  quick <days>        last N days (needs an availability result)
  clear               clear all selections
  status              re-print current state
  download            validate and download the CSV
  quit                exit
`)
}
