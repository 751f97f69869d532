// Package memflow provides a top-level convenience entry point for embedding
// the memory pipeline in a host chat bot without running the full server.
//
// Usage:
//
//	import "github.com/BaSui01/memflow"
//
//	p, err := memflow.New(memflow.WithGateway("https://memos.example/api/v1", apiKey))
//	defer p.Close()
//
//	prompt := p.Inject(ctx, userQuery, userID, conversationID)
//	// ... call the LLM with prompt ...
//	p.RecordRound(ctx, userQuery, aiResponse, userID, conversationID)
//
// The pipeline buffers rounds in an in-process sqlite store by default and
// uploads batches in the background; every failure path is logged, never
// surfaced to the conversation.
package memflow

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/memflow/buffer"
	"github.com/BaSui01/memflow/config"
	"github.com/BaSui01/memflow/dispatch"
	"github.com/BaSui01/memflow/gateway"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/store"
)

// Pipeline bundles the buffering, upload, and retrieval components behind a
// minimal surface for host bots.
type Pipeline struct {
	manager    *memory.Manager
	controller *buffer.Controller
	dispatcher *dispatch.Dispatcher
	turnStore  store.TurnStore
	threshold  *config.Threshold
	language   string
	injection  memory.InjectionType
	logger     *zap.Logger
}

type options struct {
	baseURL        string
	apiKey         string
	dbPath         string
	flushThreshold int
	factLimit      int
	tokenLimit     int
	language       string
	injection      memory.InjectionType
	workers        int
	queueSize      int
	logger         *zap.Logger
}

// Option configures the pipeline created by [New].
type Option func(*options)

// WithGateway sets the remote memory service endpoint and credentials.
func WithGateway(baseURL, apiKey string) Option {
	return func(o *options) {
		o.baseURL = baseURL
		o.apiKey = apiKey
	}
}

// WithDatabase sets the sqlite file backing the turn buffer.
// Defaults to an in-memory database, which loses the buffer on restart.
func WithDatabase(path string) Option {
	return func(o *options) { o.dbPath = path }
}

// WithFlushThreshold sets how many rounds accumulate before an upload.
// A threshold of 1 uploads every round immediately.
func WithFlushThreshold(rounds int) Option {
	return func(o *options) { o.flushThreshold = rounds }
}

// WithFactLimit caps the number of fact memories injected into a prompt.
func WithFactLimit(n int) Option {
	return func(o *options) { o.factLimit = n }
}

// WithTokenLimit caps the injected memory block size in tokens.
func WithTokenLimit(n int) Option {
	return func(o *options) { o.tokenLimit = n }
}

// WithLanguage fixes the injection template language ("zh" or "en").
// The default detects the language from the query.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithSystemInjection renders memories for a system message instead of
// wrapping the user query.
func WithSystemInjection() Option {
	return func(o *options) { o.injection = memory.InjectSystem }
}

// WithUploadPool sizes the background upload worker pool.
func WithUploadPool(workers, queueSize int) Option {
	return func(o *options) {
		o.workers = workers
		o.queueSize = queueSize
	}
}

// WithLogger sets the zap logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New assembles a memory pipeline: sqlite-backed turn buffer, bounded upload
// dispatcher, and the retrieval/injection manager.
func New(opts ...Option) (*Pipeline, error) {
	o := options{
		dbPath:         ":memory:",
		flushThreshold: 1,
		language:       "auto",
		injection:      memory.InjectUser,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.baseURL == "" {
		return nil, fmt.Errorf("memflow: gateway base URL is required (use WithGateway)")
	}

	db, err := gorm.Open(sqlite.Open(o.dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("memflow: failed to open turn store: %w", err)
	}

	turnStore, err := store.NewTurnStore(store.Config{Type: store.TypeGorm}, db, o.logger)
	if err != nil {
		return nil, err
	}

	client := gateway.NewClient(gateway.Config{
		APIKey:  o.apiKey,
		BaseURL: o.baseURL,
	}, o.logger)

	dispatcher := dispatch.NewDispatcher(client, dispatch.Config{
		Workers:   o.workers,
		QueueSize: o.queueSize,
	}, o.logger)

	threshold := config.NewThreshold(o.flushThreshold)
	controller := buffer.NewController(turnStore, dispatcher, threshold, o.logger)

	manager := memory.NewManager(memory.ManagerConfig{
		Limit:      o.factLimit,
		TokenLimit: o.tokenLimit,
	}, client, controller, o.logger)

	return &Pipeline{
		manager:    manager,
		controller: controller,
		dispatcher: dispatcher,
		turnStore:  turnStore,
		threshold:  threshold,
		language:   o.language,
		injection:  o.injection,
		logger:     o.logger,
	}, nil
}

// Inject retrieves memories relevant to query and returns the prompt with the
// memory block rendered in. On retrieval failure the original query comes back
// unchanged; memory unavailability never blocks a conversation.
func (p *Pipeline) Inject(ctx context.Context, query, userID, conversationID string) string {
	memories := p.manager.RetrieveRelevant(ctx, query, userID, conversationID)
	lang := memory.ParseLanguage(p.language, query)
	return p.manager.InjectMemories(query, memories, lang, p.injection)
}

// RecordRound feeds one completed round into the buffering pipeline.
// Best-effort: failures are logged, never returned.
func (p *Pipeline) RecordRound(ctx context.Context, userMessage, aiResponse, userID, conversationID string) {
	p.manager.SaveRound(ctx, userMessage, aiResponse, userID, conversationID)
}

// SetFlushThreshold changes the upload threshold; the new value applies to the
// next completed round.
func (p *Pipeline) SetFlushThreshold(rounds int) {
	p.threshold.Set(rounds)
}

// BufferedRounds reports complete rounds currently buffered for a conversation.
func (p *Pipeline) BufferedRounds(ctx context.Context, conversationID string) (int64, error) {
	return p.controller.BufferedRounds(ctx, conversationID)
}

// Close waits for in-flight uploads and releases the turn store.
func (p *Pipeline) Close() error {
	p.dispatcher.Close()
	return p.turnStore.Close()
}
