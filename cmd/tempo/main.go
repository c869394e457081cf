package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/ldi/tempo/internal/bus"
	"github.com/ldi/tempo/internal/engine"
	"github.com/ldi/tempo/internal/mcp"
	"github.com/ldi/tempo/internal/server"
	"github.com/ldi/tempo/internal/store"
	"github.com/ldi/tempo/internal/tui"
	"github.com/ldi/tempo/internal/ui"
	"github.com/ldi/tempo/internal/watchdog"
	"github.com/ldi/tempo/pkg/models"
)

var (
	dbPath       string
	snapshotPath string
	verbose      bool
)

func main() {
	flag.StringVar(&dbPath, "db-path", ".tempo/tempo.db", "Path to database file")
	flag.StringVar(&snapshotPath, "snapshot-path", ".tempo/snapshot.json", "Path to snapshot file")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	var command string
	var args []string

	if flag.NArg() == 0 {
		selected, err := ui.RunMenu()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error running menu: %v\n", err)
			os.Exit(1)
		}
		if selected == "" {
			os.Exit(0)
		}
		command = selected
		args = []string{}
	} else {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "board":
		err = runBoard(args)
	case "web":
		err = runWeb(args)
	case "mcp":
		err = runMCP(args)
	case "watch":
		err = runWatch(args)
	case "status":
		err = runStatus(args)
	case "list-tasks":
		err = runListTasks(args)
	case "export":
		err = runExport(args)
	case "import":
		err = runImport(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app bundles the store, bus, board and activity monitor every long-running
// command needs.
type app struct {
	store   *store.Store
	bus     *bus.Bus
	board   *engine.Board
	monitor *engine.ActivityMonitor
	logger  *slog.Logger
}

func openApp(ctx context.Context) (*app, error) {
	logger := newLogger()

	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	st.EnableAutoExport(snapshotPath)

	b := bus.New()
	board := engine.NewBoard(st, b, logger)

	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	board.Load(snap)

	lastActive, err := st.LoadLastActive(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	if lastActive.IsZero() {
		lastActive = time.Now()
	}
	monitor := engine.NewActivityMonitor(lastActive)

	return &app{
		store:   st,
		bus:     b,
		board:   board,
		monitor: monitor,
		logger:  logger,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.store.SaveLastActive(ctx, a.monitor.LastActive()); err != nil {
		a.logger.Warn("failed to persist last-active time", slog.String("error", err.Error()))
	}
	a.store.Close()
}

func (a *app) settingsSource() watchdog.SettingsSource {
	return func(ctx context.Context) models.Settings {
		settings, err := a.store.LoadSettings(ctx)
		if err != nil {
			a.logger.Warn("failed to load settings, using defaults", slog.String("error", err.Error()))
			return models.DefaultSettings()
		}
		return settings
	}
}

// stderrNotifier surfaces auto-pause notifications on the controlling
// terminal.
type stderrNotifier struct{}

func (stderrNotifier) Notify(taskTitle string, gap time.Duration) {
	fmt.Fprintf(os.Stderr, "⏸ Auto-paused %q after %s of inactivity\n", taskTitle, gap.Round(time.Second))
}

func runInit(args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	tempoDir := filepath.Join(targetDir, ".tempo")
	if err := os.MkdirAll(tempoDir, 0755); err != nil {
		return fmt.Errorf("failed to create .tempo directory: %w", err)
	}
	fmt.Println("✓ Created .tempo/ directory")

	gitignorePath := filepath.Join(tempoDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("tempo.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Println("✓ Created .tempo/.gitignore")

	finalDbPath := dbPath
	if dbPath == ".tempo/tempo.db" {
		finalDbPath = filepath.Join(tempoDir, "tempo.db")
	}
	finalSnapshotPath := snapshotPath
	if snapshotPath == ".tempo/snapshot.json" {
		finalSnapshotPath = filepath.Join(tempoDir, "snapshot.json")
	}

	st, err := store.Open(finalDbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	fmt.Printf("✓ Initialized database at %s\n", finalDbPath)

	if _, err := os.Stat(finalSnapshotPath); err == nil {
		snap, err := st.ImportSnapshot(ctx, finalSnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		if err := st.SaveSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("failed to store imported snapshot: %w", err)
		}
		fmt.Printf("✓ Imported snapshot from %s\n", finalSnapshotPath)
	} else {
		logger := newLogger()
		board := engine.NewBoard(st, nil, logger)
		if len(board.Workspaces()) == 0 {
			if _, err := board.CreateWorkspace(ctx, "Personal"); err != nil {
				return fmt.Errorf("failed to seed default workspace: %w", err)
			}
			fmt.Println("✓ Seeded default 'Personal' workspace")
		}
	}

	if err := st.SaveSettings(ctx, models.DefaultSettings()); err != nil {
		return fmt.Errorf("failed to store default settings: %w", err)
	}

	fmt.Println("✓ Tempo initialized successfully")
	return nil
}

func runBoard(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	updates := make(chan *models.Snapshot, 16)
	a.bus.Subscribe(func(snap *models.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})

	wd := watchdog.New(a.board, a.monitor, a.settingsSource(), nil, a.logger)
	go wd.Run(ctx)

	return tui.Run(ctx, a.board, a.monitor, updates)
}

func runWeb(args []string) error {
	webFlags := flag.NewFlagSet("web", flag.ContinueOnError)
	port := webFlags.String("port", "8000", "Port to listen on")
	if err := webFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	wd := watchdog.New(a.board, a.monitor, a.settingsSource(), stderrNotifier{}, a.logger)
	go wd.Run(ctx)

	srv := server.New(a.board, a.monitor, a.store, a.logger)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", *port),
		Handler: srv.Engine(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	a.logger.Info("web server listening", slog.String("addr", httpSrv.Addr))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runMCP(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	wd := watchdog.New(a.board, a.monitor, a.settingsSource(), nil, a.logger)
	go wd.Run(ctx)

	s := mcp.NewServer(a.board, a.monitor)
	return mcp.Serve(s)
}

func runWatch(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	wd := watchdog.New(a.board, a.monitor, a.settingsSource(), stderrNotifier{}, a.logger)
	a.logger.Info("inactivity watchdog running", slog.Duration("interval", wd.CheckInterval))
	if err := wd.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runStatus(args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	tasks := a.board.Tasks()
	statusCounts := make(map[models.TaskStatus]int)
	for _, t := range tasks {
		statusCounts[t.Status]++
	}

	fmt.Println("Tempo Board Status")
	fmt.Println("==================")
	fmt.Printf("Workspaces:  %d\n", len(a.board.Workspaces()))
	fmt.Printf("Total Tasks: %d\n", len(tasks))

	fmt.Println("\nTask Breakdown:")
	for _, status := range models.StatusOrder {
		fmt.Printf("  %-12s %d\n", status, statusCounts[status])
	}

	if active := a.board.ActiveTask(); active != nil {
		worked := a.board.WorkedTime(active.ID, time.Now())
		fmt.Printf("\nActive: %s (worked %s)\n", active.Title, worked.Round(time.Second))
	} else {
		fmt.Println("\nNo active task")
	}
	return nil
}

func runListTasks(args []string) error {
	taskFlags := flag.NewFlagSet("list-tasks", flag.ContinueOnError)
	statusFilter := taskFlags.String("status", "", "Filter by status (NEW, UP_NEXT, WORKING, IN_PROGRESS, BLOCKED, DONE)")
	workspaceFilter := taskFlags.String("workspace", "", "Filter by workspace name")
	if err := taskFlags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	workspaceNames := make(map[string]string)
	for _, ws := range a.board.Workspaces() {
		workspaceNames[ws.ID] = ws.Name
	}

	tasks := a.board.Tasks()
	if *statusFilter != "" {
		status := models.TaskStatus(*statusFilter)
		if !status.Valid() {
			return fmt.Errorf("unknown status %q", *statusFilter)
		}
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Status == status {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	if *workspaceFilter != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if workspaceNames[t.WorkspaceID] == *workspaceFilter {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}

	sort.Slice(tasks, func(i, j int) bool {
		si, sj := tasks[i].Status.Index(), tasks[j].Status.Index()
		if si != sj {
			return si < sj
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	fmt.Printf("%-30s %-15s %-12s %-10s\n", "TITLE", "WORKSPACE", "STATUS", "WORKED")
	fmt.Println("----------------------------------------------------------------------")
	now := time.Now()
	for _, t := range tasks {
		worked := a.board.WorkedTime(t.ID, now).Round(time.Second)
		fmt.Printf("%-30s %-15s %-12s %-10s\n", t.Title, workspaceNames[t.WorkspaceID], t.Status, worked)
	}
	return nil
}

func runExport(args []string) error {
	path := snapshotPath
	if len(args) > 0 {
		path = args[0]
	}

	ctx := context.Background()
	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.ExportSnapshot(ctx, path); err != nil {
		return err
	}
	fmt.Printf("✓ Exported snapshot to %s\n", path)
	return nil
}

func runImport(args []string) error {
	path := snapshotPath
	if len(args) > 0 {
		path = args[0]
	}

	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	snap, err := a.store.ImportSnapshot(ctx, path)
	if err != nil {
		return err
	}

	// Imported snapshots go through the same last-writer-wins gate as
	// live sync updates: a stale file never clobbers newer local state.
	applied, conflict := a.board.ApplyRemote(snap)
	if conflict != nil {
		fmt.Printf("Conflict: local active %q vs incoming active %q; keeping incoming\n",
			conflict.Local.Title, conflict.Incoming.Title)
		a.board.ResolveConflict(snap, true)
		applied = true
	}
	if !applied {
		fmt.Println("Snapshot is older than local state; nothing imported")
		return nil
	}

	if err := a.store.SaveSnapshot(ctx, a.board.Snapshot()); err != nil {
		return err
	}
	fmt.Printf("✓ Imported snapshot from %s\n", path)
	return nil
}
