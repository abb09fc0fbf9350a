package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edtsuite/timetable-core/internal/dto"
	"github.com/edtsuite/timetable-core/internal/models"
	"github.com/edtsuite/timetable-core/internal/repository"
	"github.com/edtsuite/timetable-core/internal/service"
	"github.com/edtsuite/timetable-core/internal/store"
	"github.com/edtsuite/timetable-core/pkg/config"
	"github.com/edtsuite/timetable-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Sugar().Fatalw("command failed", "error", err)
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	persistence, err := openPersistence(cfg)
	if err != nil {
		return fmt.Errorf("open persistence: %w", err)
	}

	st := store.New(store.Config{
		UndoDepth:   cfg.Undo.Depth,
		Persistence: persistence,
		Logger:      logr,
	})
	grid, err := models.GridFromConfig(cfg.Grid.Days, cfg.Grid.Slots, cfg.Grid.BreakSlot)
	if err != nil {
		return fmt.Errorf("build grid: %w", err)
	}
	if _, err := st.SetGrid(grid); err != nil {
		return fmt.Errorf("apply grid: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	parser := service.NewConstraintParserService(nil, grid.Days, logr)
	conflicts := service.NewConflictService(parser, nil, logr)
	volumes := service.NewVolumeService(logr)
	generator := service.NewGeneratorService(st, parser, conflicts, metrics, validate, logr)
	optimizer := service.NewOptimizerService(st, conflicts, parser, metrics, validate, nil, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) == 0 {
		args = []string{"help"}
	}

	switch args[0] {
	case "generate":
		return cmdGenerate(ctx, cfg, st, parser, generator, args[1:])
	case "optimize":
		return cmdOptimize(ctx, cfg, st, parser, optimizer, args[1:])
	case "volumes":
		return cmdVolumes(ctx, st, volumes, args[1:])
	case "metrics":
		return cmdMetrics(metrics, args[1:])
	case "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func cmdGenerate(ctx context.Context, cfg *config.Config, st *store.Store, parser *service.ConstraintParserService, generator *service.GeneratorService, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	subject := fs.String("subject", "", "generate only this subject")
	session := fs.String("session", "", "load this named session first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := loadNamed(ctx, st, *session); err != nil {
		return err
	}
	if err := refreshWishes(st, parser); err != nil {
		return err
	}

	report, err := generator.Generate(ctx, dto.GenerateOptions{
		Subject:        *subject,
		AssignTeachers: true,
		AssignRooms:    true,
		RespectWishes:  cfg.Generator.RespectWishes,
		AvoidConflicts: cfg.Generator.AvoidConflicts,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %d, skipped %d, failed %d of %d\n", report.Created, report.Skipped, report.Failed, report.Total)
	for _, failure := range report.Failures {
		fmt.Printf("  failed: %s\n", failure)
	}
	if *session != "" {
		return st.SaveState(ctx, *session)
	}
	return nil
}

func cmdOptimize(ctx context.Context, cfg *config.Config, st *store.Store, parser *service.ConstraintParserService, optimizer *service.OptimizerService, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	apply := fs.Bool("apply", false, "commit the optimized schedule")
	session := fs.String("session", "", "load this named session first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := loadNamed(ctx, st, *session); err != nil {
		return err
	}
	if err := refreshWishes(st, parser); err != nil {
		return err
	}

	result, err := optimizer.Optimize(ctx, dto.OptimizeOptions{
		RemoveGaps:         true,
		BalanceLoad:        true,
		RespectExisting:    true,
		RespectConstraints: true,
		MaxSteps:           cfg.Optimizer.MaxSteps,
		Budget:             cfg.Optimizer.Budget,
		Tolerance:          cfg.Optimizer.Tolerance,
	})
	if err != nil {
		return err
	}
	fmt.Printf("run %s: score %.1f -> %.1f in %d steps (conflicts %d, gaps %d)\n",
		result.RunID, result.CurrentStats.Score, result.OptimizedStats.Score,
		result.Steps, result.OptimizedStats.Conflicts, result.OptimizedStats.Gaps)
	if !*apply {
		return nil
	}
	if err := optimizer.ApplyOptimized(result); err != nil {
		return err
	}
	if *session != "" {
		return st.SaveState(ctx, *session)
	}
	return nil
}

func cmdVolumes(ctx context.Context, st *store.Store, volumes *service.VolumeService, args []string) error {
	fs := flag.NewFlagSet("volumes", flag.ExitOnError)
	session := fs.String("session", "", "load this named session first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := loadNamed(ctx, st, *session); err != nil {
		return err
	}

	state := st.Snapshot()
	for name := range state.Teachers {
		v := volumes.TeacherVolume(state, name)
		fmt.Printf("%s: autumn %.1fh, spring %.1fh, annual %.1fh\n", name, v.Autumn, v.Spring, v.Annual)
	}
	for name := range state.Subjects {
		v, err := volumes.SubjectVolume(state, name)
		if err != nil {
			continue
		}
		fmt.Printf("%s: %d/%d sessions planned (%.0f%%)\n", name, v.Planned, v.Expected, v.Completion*100)
	}
	return nil
}

func cmdMetrics(metrics *service.MetricsService, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	addr := fs.String("addr", ":9090", "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return http.ListenAndServe(*addr, mux)
}

// refreshWishes re-parses every teacher remark so loaded states carry
// up-to-date constraint records.
func refreshWishes(st *store.Store, parser *service.ConstraintParserService) error {
	for _, w := range parser.ParseWishes(st.Snapshot()) {
		if err := st.SetTeacherConstraint(w.Teacher, w.Raw, w.Constraint); err != nil {
			return err
		}
	}
	return nil
}

func loadNamed(ctx context.Context, st *store.Store, name string) error {
	if name == "" {
		return nil
	}
	return st.LoadState(ctx, name)
}

func openPersistence(cfg *config.Config) (store.Persistence, error) {
	switch cfg.Persistence.Driver {
	case config.DriverPostgres:
		db, err := repository.OpenPostgres(cfg.Database)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresStateRepository(db), nil
	case config.DriverRedis:
		client, err := repository.OpenRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisStateRepository(client), nil
	default:
		return repository.NewFileStateRepository(cfg.Persistence.Dir)
	}
}

func usage() {
	fmt.Println(`usage: timetable <command> [flags]

commands:
  generate  create the sessions declared volumes still require
  optimize  improve the schedule (dry by default; -apply commits)
  volumes   print teacher and subject hour volumes
  metrics   serve Prometheus metrics over HTTP`)
}
