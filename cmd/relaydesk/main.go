package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/agent"
	"github.com/relaydesk/relaydesk/billing"
	"github.com/relaydesk/relaydesk/config"
	"github.com/relaydesk/relaydesk/escalate"
	"github.com/relaydesk/relaydesk/features/kv/redis"
	"github.com/relaydesk/relaydesk/features/model/anthropic"
	"github.com/relaydesk/relaydesk/features/model/fallback"
	"github.com/relaydesk/relaydesk/features/model/openai"
	"github.com/relaydesk/relaydesk/features/parse/unstructured"
	"github.com/relaydesk/relaydesk/features/rerank/cohere"
	"github.com/relaydesk/relaydesk/features/store/postgres"
	"github.com/relaydesk/relaydesk/features/vector/qdrant"
	"github.com/relaydesk/relaydesk/httpapi"
	"github.com/relaydesk/relaydesk/ingest"
	"github.com/relaydesk/relaydesk/language"
	"github.com/relaydesk/relaydesk/retrieval"
	"github.com/relaydesk/relaydesk/tokenizer"
)

func main() {
	var (
		addrF    = flag.String("http-addr", ":8080", "HTTP listen address")
		migrateF = flag.Bool("migrate", true, "Apply the database schema on startup")
		dbgF     = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	// Setup logger.
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(ctx, err)
	}

	if err := run(ctx, cfg, *addrF, *migrateF); err != nil {
		log.Fatal(ctx, err)
	}
	log.Printf(ctx, "exited")
}

func run(ctx context.Context, cfg *config.Config, addr string, migrate bool) error {
	// Relational stores.
	stores, err := postgres.New(ctx, postgres.Options{DSN: cfg.DatabaseURL})
	if err != nil {
		return err
	}
	defer stores.Close()
	if migrate {
		if err := stores.Migrate(ctx); err != nil {
			return err
		}
	}

	// Key-value store.
	ropts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(ropts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	kv, err := redis.New(rdb)
	if err != nil {
		return err
	}

	// Vector index.
	index, err := qdrant.New(qdrant.Options{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
		UseTLS: cfg.QdrantTLS,
	})
	if err != nil {
		return err
	}

	// Model providers: Anthropic primary, OpenAI fallback and embeddings.
	primary, err := anthropic.NewFromAPIKey(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	if err != nil {
		return err
	}
	secondary, err := openai.New(cfg.OpenAIAPIKey, openai.Options{
		Model:          cfg.OpenAIModel,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return err
	}
	llm, err := fallback.New(fallback.Options{Primary: primary, Secondary: secondary})
	if err != nil {
		return err
	}

	reranker, err := cohere.New(cohere.Options{APIKey: cfg.CohereAPIKey, Model: cfg.RerankModel})
	if err != nil {
		return err
	}

	parser, err := unstructured.New(unstructured.Options{URL: cfg.ParserURL, APIKey: cfg.ParserAPIKey})
	if err != nil {
		return err
	}
	codec, err := tokenizer.NewCL100K()
	if err != nil {
		return err
	}

	pipeline, err := ingest.New(ingest.Options{
		Parser:    parser,
		Codec:     codec,
		Model:     llm,
		Index:     index,
		Documents: stores.Documents,
		Cache:     kv,
	})
	if err != nil {
		return err
	}

	retriever, err := retrieval.New(retrieval.Options{
		Model:    llm,
		Index:    index,
		Cache:    kv,
		Reranker: reranker,
	})
	if err != nil {
		return err
	}

	memory, err := agent.NewMemory(kv, cfg.IdleSessionTimeout)
	if err != nil {
		return err
	}
	escalator, err := escalate.New(escalate.Options{
		Sessions: stores.Sessions,
		Messages: stores.Messages,
		Billing:  stores.BillingEvents,
		Memory:   memory,
	})
	if err != nil {
		return err
	}
	engine, err := agent.NewEngine(agent.Options{
		Model:     llm,
		Retriever: retriever,
		Escalator: escalator,
		Memory:    memory,
		Messages:  stores.Messages,
	})
	if err != nil {
		return err
	}

	meter, err := billing.New(billing.Options{
		KV:          kv,
		Events:      stores.BillingEvents,
		IdleTimeout: cfg.IdleSessionTimeout,
	})
	if err != nil {
		return err
	}
	sweeper, err := billing.NewSweeper(billing.SweeperOptions{
		Sessions:    stores.Sessions,
		Meter:       meter,
		IdleTimeout: cfg.IdleSessionTimeout,
	})
	if err != nil {
		return err
	}

	server, err := httpapi.New(httpapi.Options{
		Tenants:   stores.Tenants,
		Sessions:  stores.Sessions,
		Messages:  stores.Messages,
		Documents: stores.Documents,
		Engine:    engine,
		Memory:    memory,
		Meter:     meter,
		Pipeline:  pipeline,
		Index:     index,
		Cache:     kv,
		Language:  language.New(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sweeper.Run(ctx)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           log.HTTP(ctx)(server),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "HTTP server listening on %s", addr)
		errc <- httpServer.ListenAndServe()
	}()

	err = <-errc
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf(ctx, "exiting (%v)", err)
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer done()
	return httpServer.Shutdown(shutdownCtx)
}
