package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	orchestratorx "github.com/tanpawarit/support-router/agent/agents/orchestrator"
	specialistx "github.com/tanpawarit/support-router/agent/agents/specialist"
	auditx "github.com/tanpawarit/support-router/agent/audit"
	chatx "github.com/tanpawarit/support-router/agent/chat"
	contractx "github.com/tanpawarit/support-router/agent/contract"
	httpapix "github.com/tanpawarit/support-router/agent/httpapi"
	llmx "github.com/tanpawarit/support-router/agent/llm"
	promptx "github.com/tanpawarit/support-router/agent/prompt"
	statex "github.com/tanpawarit/support-router/agent/state"
	teamx "github.com/tanpawarit/support-router/agent/team"
	toolx "github.com/tanpawarit/support-router/agent/tool"
	configx "github.com/tanpawarit/support-router/pkg/config"
	logx "github.com/tanpawarit/support-router/pkg/logger"
	_ "github.com/tanpawarit/support-router/pkg/logger/autoload"
	openrouterx "github.com/tanpawarit/support-router/pkg/openrouter"
	qstashx "github.com/tanpawarit/support-router/pkg/qstash"
)

type AppConfig struct {
	Mode          string        `envconfig:"APP_MODE" default:"repl"`
	HTTPAddr      string        `envconfig:"HTTP_ADDR" default:":8080"`
	UserID        string        `envconfig:"USER_ID" default:"guest"`
	TicketLogPath string        `envconfig:"TICKET_LOG_PATH" default:"tickets.log"`
	TurnTimeout   time.Duration `envconfig:"TURN_TIMEOUT" default:"60s"`
	MaxToolCycles int           `envconfig:"MAX_TOOL_CYCLES" default:"8"`
	SessionStore  string        `envconfig:"SESSION_STORE" default:"memory"`
	ArchiveDSN    string        `envconfig:"ARCHIVE_DSN"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")
	llmCfg := configx.MustNew[llmx.Config]("LLM")
	if err := llmCfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid llm config")
	}

	roster, err := teamx.Default(promptx.LoadPromptSet())
	if err != nil {
		log.Fatal().Err(err).Msg("build support team")
	}

	if llmCfg.Preflight {
		preflight(ctx, *llmCfg, roster)
	}

	tickets := toolx.NewTicketLog(appCfg.TicketLogPath, ticketOptions()...)
	tools, err := toolx.NewRegistry(roster, toolx.Defaults(tickets, time.Now), toolx.WithLogger(logx.Component("tool")))
	if err != nil {
		log.Fatal().Err(err).Msg("build tool registry")
	}

	models, err := specialistx.NewRegistry(ctx, *llmCfg, roster, tools.InfosFor, logx.Component("agents"))
	if err != nil {
		log.Fatal().Err(err).Msg("build agent registry")
	}

	store := sessionStore(appCfg.SessionStore)

	opts := []orchestratorx.Option{orchestratorx.WithLogger(logx.Component("orchestrator"))}
	if dsn := strings.TrimSpace(appCfg.ArchiveDSN); dsn != "" {
		archive, err := auditx.Open(ctx, dsn)
		if err != nil {
			log.Fatal().Err(err).Msg("open turn archive")
		}
		defer archive.Close()
		opts = append(opts, orchestratorx.WithSink(archive))
	}

	orch, err := orchestratorx.New(store, models, tools, orchestratorx.Config{
		TurnTimeout:   appCfg.TurnTimeout,
		MaxToolCycles: appCfg.MaxToolCycles,
		Coordinator:   roster.Coordinator().Name,
	}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	switch strings.ToLower(strings.TrimSpace(appCfg.Mode)) {
	case "http":
		serveHTTP(ctx, appCfg.HTTPAddr, orch)
	default:
		sessionID := statex.NewSessionID(time.Now())
		log.Info().Str("session_id", sessionID).Str("user_id", appCfg.UserID).Msg("chat session started")
		if err := chatx.New(orch, sessionID, appCfg.UserID).Run(ctx, os.Stdin, os.Stdout); err != nil {
			log.Error().Err(err).Msg("chat session ended with error")
		}
	}
}

func preflight(ctx context.Context, cfg llmx.Config, roster teamx.Config) {
	client := openrouterx.NewClient(cfg.OpenRouterFor(roster.Coordinator().Name))
	if client == nil {
		log.Fatal().Msg("failed to initialize openrouter client")
	}

	models := []string{cfg.OpenRouterFor(roster.Coordinator().Name).Model}
	for _, p := range roster.Specialists() {
		models = append(models, cfg.OpenRouterFor(p.Name).Model)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := openrouterx.Preflight(checkCtx, client, models...); err != nil {
		log.Fatal().Err(errors.Join(contractx.ErrConfiguration, err)).Msg("model preflight failed")
	}
}

func ticketOptions() []toolx.TicketOption {
	opts := []toolx.TicketOption{toolx.WithTicketLogger(logx.Component("ticket"))}

	qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
	if !qstashCfg.Enabled() {
		return opts
	}
	client := qstashx.MustNew(*qstashCfg)
	log.Info().Str("destination", qstashCfg.Destination).Msg("ticket notifications enabled")
	return append(opts, toolx.WithPublisher(client, qstashCfg.Destination))
}

func sessionStore(kind string) statex.Store {
	if !strings.EqualFold(strings.TrimSpace(kind), "upstash") {
		return statex.NewMemoryStore()
	}
	redisCfg := configx.MustNew[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	store, err := statex.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build upstash session store")
	}
	return store
}

func serveHTTP(ctx context.Context, addr string, orch *orchestratorx.Orchestrator) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpapix.NewRouter(orch, logx.Component("http")),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}
