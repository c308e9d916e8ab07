package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medhelp-assistant/internal/config"
	"github.com/kirillkom/medhelp-assistant/internal/core/domain"
	"github.com/kirillkom/medhelp-assistant/internal/core/usecase"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/medhelp-assistant/internal/infrastructure/vector/qdrant"
)

// Options selects the optional infrastructure a process needs.
type Options struct {
	// ClientName identifies the process to NATS.
	ClientName string
	// Queue connects to NATS for fallback events.
	Queue bool
	// Store opens Postgres for the unanswered-query log.
	Store bool
	// Observer receives retry and breaker events; may be nil.
	Observer resilience.Observer
}

type App struct {
	Config config.Config
	Policy domain.RetrievalPolicy

	Ollama *ollama.Client
	Qdrant *qdrant.Client
	Queue  *nats.Queue

	Answer      *usecase.AnswerUseCase
	Categorizer *usecase.Categorizer
	Fallback    *usecase.FallbackReportUseCase
	Unanswered  *usecase.RecordUnansweredUseCase

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("load retrieval policy: %w", err)
	}

	app := &App{Config: cfg, Policy: policy}

	generationExec := newExecutor(cfg.Resilience().WithSingleAttempt(), opts.Observer)
	retrievalExec := newExecutor(cfg.Resilience(), opts.Observer)

	app.Ollama = ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel)
	generator := ollama.NewGenerator(app.Ollama, generationExec)
	embedder := ollama.NewEmbedder(app.Ollama, retrievalExec)

	app.Qdrant = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection).WithResilience(retrievalExec)
	retriever := qdrant.NewRetriever(embedder, app.Qdrant)

	app.Answer = usecase.NewAnswerUseCase(retriever, generator, policy, cfg.AnswerLimits())
	app.Categorizer = usecase.NewCategorizer(generator, cfg.CategorizeTimeout)

	if opts.Store {
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		app.closers = append(app.closers, func() { _ = db.Close() })

		repo := postgres.NewUnansweredRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		app.Unanswered = usecase.NewRecordUnansweredUseCase(app.Categorizer, repo)
	}

	if opts.Queue {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ClientName:         opts.ClientName,
			ResilienceExecutor: newExecutor(cfg.Resilience(), opts.Observer),
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
		if cfg.FallbackEnabled {
			app.Fallback = usecase.NewFallbackReportUseCase(queue)
		}
	}

	slog.Info("bootstrap_ready",
		"collection", cfg.QdrantCollection,
		"gen_model", cfg.OllamaGenModel,
		"acceptance_threshold", policy.AcceptanceThreshold,
		"approved_domains", len(policy.ApprovedDomains),
		"queue", app.Queue != nil,
		"store", app.Unanswered != nil,
	)
	return app, nil
}

// QueuePinger adapts the queue connection state to a readiness probe.
type QueuePinger struct {
	Queue *nats.Queue
}

var errQueueDisconnected = errors.New("nats disconnected")

func (p QueuePinger) Ping(context.Context) error {
	if p.Queue == nil || !p.Queue.Connected() {
		return errQueueDisconnected
	}
	return nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newExecutor(cfg resilience.Config, observer resilience.Observer) *resilience.Executor {
	exec := resilience.NewExecutor(cfg)
	if observer != nil {
		exec.WithObserver(observer)
	}
	return exec
}
