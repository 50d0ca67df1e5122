package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/devteam/complexity"
	"github.com/dshills/devteam/config"
	"github.com/dshills/devteam/emit"
	"github.com/dshills/devteam/evaluation"
	"github.com/dshills/devteam/internal/logging"
	"github.com/dshills/devteam/model"
	"github.com/dshills/devteam/pipeline"
	"github.com/dshills/devteam/roles"
	"github.com/dshills/devteam/store"
	"github.com/dshills/devteam/team"
)

// app holds the process-wide dependencies shared by the commands.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	store      store.Store[team.State]
	closeStore func() error
	models     *models
	costs      *model.CostTracker
	registry   *prometheus.Registry
	metrics    *pipeline.Metrics
	tracing    *tracing
	prompt     prompter
}

func newApp(ctx context.Context, cfg *config.Config, p prompter) (*app, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		logger:   logger,
		costs:    model.NewCostTracker(),
		registry: prometheus.NewRegistry(),
		prompt:   p,
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = pipeline.NewMetrics(a.registry)

	if a.tracing, err = initTracing(ctx, cfg.Telemetry, logger); err != nil {
		return nil, err
	}
	if a.models, err = buildModels(ctx, cfg.LLM, logger); err != nil {
		_ = a.tracing.shutdown(ctx)
		return nil, err
	}
	if a.store, a.closeStore, err = openStore(ctx, cfg.Store, logger); err != nil {
		_ = a.models.Close()
		_ = a.tracing.shutdown(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}
	return a, nil
}

func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := errors.Join(
		a.closeStore(),
		a.models.Close(),
		a.tracing.shutdown(ctx),
	)
	_ = a.logger.Sync()
	return err
}

func (a *app) emitter() emit.Emitter {
	emitters := []emit.Emitter{emit.NewLogEmitter(a.logger)}
	if t := a.tracing.tracer(); t != nil {
		emitters = append(emitters, emit.NewOTelEmitter(t))
	}
	return emit.Multi(emitters...)
}

func (a *app) assessor() *complexity.Analyzer {
	return complexity.NewAnalyzer(
		a.models.selector.ForAgent("complexity_analyzer"),
		complexity.WithLogger(a.logger.Named("complexity")),
		complexity.WithTimeout(a.cfg.LLM.AssessTimeout),
		complexity.WithCostTracker(a.costs),
	)
}

// engine wires the dev team pipeline for goal.
func (a *app) engine(goal roles.GoalSource) (*pipeline.Engine, error) {
	deps := pipeline.Deps{
		Goal:               goal,
		Assessor:           a.assessor(),
		WorkContext:        a.cfg.Team.WorkContext,
		MaxManagers:        a.cfg.Team.MaxManagers,
		MaxSeniorEngineers: a.cfg.Team.MaxSeniorEngineers,
		Loops: roles.LoopBounds{
			MaxLoops:       a.cfg.Evaluation.MaxLoops,
			MaxEscalations: a.cfg.Evaluation.MaxEscalations,
			MaxTicks:       a.cfg.Evaluation.MaxTicks,
		},
		HoldForAggregation: a.cfg.Evaluation.HoldForAggregation,
		Costs:              a.costs,
		Logger:             a.logger,
	}
	if a.models.enabled() {
		sel := a.models.selector
		deps.Executor = roles.NewLLMExecutor(sel, roles.WithLogger(a.logger.Named("executor")), roles.WithCostTracker(a.costs))
		deps.Reviewer = evaluation.NewLLMReviewer(sel.ForAgent("peer_review_evaluator"),
			evaluation.WithReviewerLogger(a.logger.Named("reviewer")),
			evaluation.WithReviewerCosts(a.costs),
		)
		deps.Advisor = sel.ForAgent("cto")
	}

	run := a.cfg.Run
	return pipeline.BuildDevTeam(a.store, a.emitter(), deps,
		pipeline.WithMaxSteps(run.MaxSteps),
		pipeline.WithRunWallClockBudget(run.WallClockBudget),
		pipeline.WithDefaultNodeTimeout(run.NodeTimeout),
		pipeline.WithInvariantChecks(run.CheckInvariants),
		pipeline.WithMetrics(a.metrics),
	)
}

// serve runs work while the metrics endpoint, when configured, is up. The
// endpoint is shut down once work returns.
func (a *app) serve(ctx context.Context, work func(context.Context) error) error {
	if a.cfg.Metrics.ListenAddr == "" {
		return work(ctx)
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("metrics endpoint listening", zap.String("addr", srv.Addr), zap.String("path", a.cfg.Metrics.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return work(gctx)
	})
	return g.Wait()
}
