package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simkit/compstore/internal/config"
	"github.com/simkit/compstore/internal/core/ecs"
	"github.com/simkit/compstore/internal/core/event"
	coresys "github.com/simkit/compstore/internal/core/system"
	"github.com/simkit/compstore/internal/data"
	"github.com/simkit/compstore/internal/scripting"
	"github.com/simkit/compstore/internal/system"
	"github.com/simkit/compstore/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Display helpers ───────────────────────────────────────────────

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printFail(msg string) {
	fmt.Printf("  \033[31m✗\033[0m %s\n", msg)
}

// ── Simulation ────────────────────────────────────────────────────

func run() error {
	cfgPath := "config/compsim.toml"
	if p := os.Getenv("COMPSIM_CONFIG"); p != "" {
		cfgPath = p
	}
	flag.StringVar(&cfgPath, "config", cfgPath, "path to the simulation config")
	ticks := flag.Int("ticks", -1, "override simulation.ticks")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *ticks >= 0 {
		cfg.Simulation.Ticks = *ticks
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	switch cfg.Profile.Mode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.Profile.Dir), profile.NoShutdownHook, profile.Quiet).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath(cfg.Profile.Dir), profile.NoShutdownHook, profile.Quiet).Stop()
	}

	// 3. Component types
	printSection("component types")
	catalog, err := data.LoadCatalog(cfg.Components.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	reg := ecs.NewTypeRegistry(log)
	reg.Init()
	defer reg.Shutdown()
	if _, err := catalog.Register(reg); err != nil {
		return fmt.Errorf("register catalog: %w", err)
	}
	printStat("types registered", catalog.Count())

	mgr := ecs.NewManager(reg, cfg.Components.Pools,
		ecs.WithLogger(log),
		ecs.WithWeakBuckets(cfg.Components.WeakRefBuckets),
	)
	defer mgr.Close()
	pools, slots := 0, 0
	for _, d := range reg.Types() {
		if p := mgr.Pool(d.ID()); p != nil {
			pools++
			slots += p.Cap()
		}
	}
	printStat("pools", pools)
	printStat("slots", slots)
	printStat("weak ref buckets", mgr.Weak().BucketCount())
	fmt.Println()

	// 4. Scenario
	printSection("scenario")
	lua, err := scripting.NewEngine(cfg.Simulation.ScriptDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer lua.Close()
	printOK("scripts loaded from " + cfg.Simulation.ScriptDir)

	bus := event.NewBus()
	ws := world.New(mgr, bus, cfg.Simulation.Owners, log)
	defer ws.Close()

	churn := system.NewChurnSystem(ws, lua, cfg.Simulation.Seed, log)
	cleanup := system.NewCleanupSystem(ws)
	sweep := system.NewWeakRefSweepSystem(mgr)
	dispatch := system.NewEventDispatchSystem(bus)

	runner := coresys.NewRunner()
	runner.Register(dispatch)
	runner.Register(churn)
	runner.Register(cleanup)
	runner.Register(sweep)
	var verify *system.VerifySystem
	if cfg.Simulation.Verify {
		verify = system.NewVerifySystem(mgr, log)
		runner.Register(verify)
	}
	printStat("systems", runner.Len())
	fmt.Println()

	// 5. Run
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	if err := loop(ctx, runner, cfg.Simulation); err != nil {
		log.Info("simulation interrupted", zap.Uint64("tick", runner.Ticks()))
	}
	elapsed := time.Since(started)

	// 6. Report
	st := churn.Stats
	printSection("summary")
	printStat("ticks", int(runner.Ticks()))
	printStat("entities live", ws.Len())
	printStat("entities destroyed", cleanup.Destroyed)
	printStat("components attached", st.Attached)
	printStat("attaches rejected", st.Rejected)
	printStat("components detached", st.Detached)
	printStat("components live", liveComponents(mgr))
	printStat("weak refs held", churn.Refs())
	printStat("weak refs acquired", st.Acquired)
	printStat("weak refs swept stale", sweep.Stale)
	printStat("weak refs dropped with owner", st.Orphaned)
	printStat("event handler calls", dispatch.Delivered)
	fmt.Printf("  %s in %s\n\n", "run finished", elapsed.Round(time.Millisecond))

	if verify != nil && verify.Err != nil {
		printFail("pool invariants violated")
		return fmt.Errorf("verify: %d failing ticks, first: %w", verify.Fails, verify.Err)
	}
	if st.Mismatched > 0 {
		printFail("weak refs resolved to the wrong owner")
		return fmt.Errorf("%d weak refs resolved to another entity's component", st.Mismatched)
	}
	printOK("no invariant violations")
	return nil
}

// loop ticks the runner until the configured tick count or ctx is done.
func loop(ctx context.Context, runner *coresys.Runner, sim config.SimulationConfig) error {
	if sim.TickRate <= 0 {
		for i := 0; i < sim.Ticks; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			runner.Tick(0)
		}
		return nil
	}

	ticker := time.NewTicker(sim.TickRate)
	defer ticker.Stop()
	for i := 0; i < sim.Ticks; i++ {
		select {
		case <-ticker.C:
			runner.Tick(sim.TickRate)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func liveComponents(mgr *ecs.Manager) int {
	n := 0
	for _, d := range mgr.Registry().Types() {
		n += mgr.CountAllocated(d.ID())
	}
	return n
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
