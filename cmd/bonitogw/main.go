package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gatewaycore "github.com/ShabariRepo/bonito-sub002"
	"github.com/ShabariRepo/bonito-sub002/internal/admin"
	"github.com/ShabariRepo/bonito-sub002/internal/admission"
	"github.com/ShabariRepo/bonito-sub002/internal/audit"
	"github.com/ShabariRepo/bonito-sub002/internal/auth"
	"github.com/ShabariRepo/bonito-sub002/internal/billing"
	"github.com/ShabariRepo/bonito-sub002/internal/bonitoerr"
	"github.com/ShabariRepo/bonito-sub002/internal/credentials"
	"github.com/ShabariRepo/bonito-sub002/internal/featuregate"
	"github.com/ShabariRepo/bonito-sub002/internal/pipeline"
	"github.com/ShabariRepo/bonito-sub002/internal/ratelimit"
	"github.com/ShabariRepo/bonito-sub002/internal/routing"
	"github.com/ShabariRepo/bonito-sub002/internal/secrets"
	"github.com/ShabariRepo/bonito-sub002/internal/sharedcache"
	"github.com/ShabariRepo/bonito-sub002/internal/store"
	"github.com/ShabariRepo/bonito-sub002/internal/usagerecorder"
	"github.com/ShabariRepo/bonito-sub002/internal/version"
	"github.com/ShabariRepo/bonito-sub002/models"
	"github.com/ShabariRepo/bonito-sub002/providers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	// Register built-in plugins so they can be loaded from config.
	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/cache"
	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/logger"
	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/maxtoken"
	_ "github.com/ShabariRepo/bonito-sub002/internal/plugins/wordfilter"
)

func main() {
	// Load and validate config if GATEWAY_CONFIG is set.
	var cfg *gatewaycore.Config
	if cfgPath := os.Getenv("GATEWAY_CONFIG"); cfgPath != "" {
		loaded, err := gatewaycore.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		if err := gatewaycore.ValidateConfig(*loaded); err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
		cfg = loaded
		log.Printf("Config loaded: strategy=%s, targets=%d", cfg.Strategy.Mode, len(cfg.Targets))
	}

	registry := autoRegisterProviders()
	if len(registry.List()) == 0 {
		log.Fatal("No providers configured. Set at least one provider API key (e.g., OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY) or OLLAMA_HOST for local models")
	}

	if cfg == nil {
		cfg = defaultConfig(registry)
		log.Printf("No GATEWAY_CONFIG set; using default strategy=%s with %d target(s)", cfg.Strategy.Mode, len(cfg.Targets))
	}

	gw, err := gatewaycore.New(*cfg)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	for _, name := range registry.List() {
		if p, ok := registry.Get(name); ok {
			gw.RegisterProvider(p)
		}
	}
	if len(cfg.Plugins) > 0 {
		if err := gw.LoadPlugins(); err != nil {
			log.Fatalf("Failed to load plugins: %v", err)
		}
		log.Printf("Gateway ready: %d plugin(s) loaded", len(cfg.Plugins))
	}

	catalog, catalogErr := models.Load()
	if catalogErr != nil {
		log.Printf("Warning: model catalog unavailable, pricing/capability metadata and cost accounting are disabled: %v", catalogErr)
	}

	controlPlane, err := newControlPlane(registry, catalog)
	if err != nil {
		log.Fatalf("Failed to initialize control plane: %v", err)
	}
	defer controlPlane.Close()

	keyStore := admin.NewKeyStore()

	var corsOrigins []string
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}

	r := newRouter(registry, keyStore, corsOrigins, gw, controlPlane, catalog)

	addr := ":8080"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Println("Shutting down gracefully…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		controlPlane.Recorder.Close()
	}()

	log.Printf("bonitogw %s listening on %s (%d provider(s))", version.Short(), addr, len(registry.List()))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		stop()
		log.Fatalf("Server error: %v", err) //nolint:gocritic
	}
	log.Println("Server stopped.")
}

type providerEntry struct {
	envKey string
	name   string
	create func(key, baseURL string) (providers.Provider, error)
}

func autoRegisterProviders() *providers.Registry {
	registry := providers.NewRegistry()

	autoProviders := []providerEntry{
		{"OPENAI_API_KEY", "openai", func(k, b string) (providers.Provider, error) { return providers.NewOpenAI(k, b) }},
		{"ANTHROPIC_API_KEY", "anthropic", func(k, b string) (providers.Provider, error) { return providers.NewAnthropic(k, b) }},
		{"GROQ_API_KEY", "groq", func(k, b string) (providers.Provider, error) { return providers.NewGroq(k, b) }},
		{"TOGETHER_API_KEY", "together", func(k, b string) (providers.Provider, error) { return providers.NewTogether(k, b) }},
		{"GEMINI_API_KEY", "gemini", func(k, b string) (providers.Provider, error) { return providers.NewGemini(k, b) }},
		{"MISTRAL_API_KEY", "mistral", func(k, b string) (providers.Provider, error) { return providers.NewMistral(k, b) }},
		{"COHERE_API_KEY", "cohere", func(k, b string) (providers.Provider, error) { return providers.NewCohere(k, b) }},
		{"DEEPSEEK_API_KEY", "deepseek", func(k, b string) (providers.Provider, error) { return providers.NewDeepSeek(k, b) }},
	}
	for _, pe := range autoProviders {
		if key := os.Getenv(pe.envKey); key != "" {
			p, err := pe.create(key, "")
			if err != nil {
				log.Fatalf("%s provider: %v", pe.name, err)
			}
			registry.Register(p)
			log.Printf("Provider registered: %s", pe.name)
		}
	}

	// Azure OpenAI requires additional config.
	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" {
		baseURL := os.Getenv("AZURE_OPENAI_ENDPOINT")
		deployment := os.Getenv("AZURE_OPENAI_DEPLOYMENT")
		apiVersion := os.Getenv("AZURE_OPENAI_API_VERSION")
		if baseURL != "" && deployment != "" {
			p, err := providers.NewAzureOpenAI(key, baseURL, deployment, apiVersion)
			if err != nil {
				log.Fatalf("Azure OpenAI provider: %v", err)
			}
			registry.Register(p)
			log.Println("Provider registered: azure-openai")
		} else {
			log.Println("Warning: AZURE_OPENAI_API_KEY set but AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT are required")
		}
	}

	// Ollama is local and needs no API key.
	if ollamaURL := os.Getenv("OLLAMA_HOST"); ollamaURL != "" {
		var models []string
		if m := os.Getenv("OLLAMA_MODELS"); m != "" {
			models = strings.Split(m, ",")
		}
		p, err := providers.NewOllama(ollamaURL, models)
		if err != nil {
			log.Fatalf("Ollama provider: %v", err)
		}
		registry.Register(p)
		log.Printf("Provider registered: ollama (models: %s)", strings.Join(p.SupportedModels(), ", "))
	}

	return registry
}

func defaultConfig(registry *providers.Registry) *gatewaycore.Config {
	defaultTargets := make([]gatewaycore.Target, 0, len(registry.List()))
	for _, name := range registry.List() {
		defaultTargets = append(defaultTargets, gatewaycore.Target{VirtualKey: name})
	}
	return &gatewaycore.Config{
		Strategy: gatewaycore.StrategyConfig{Mode: gatewaycore.ModeFallback},
		Targets:  defaultTargets,
	}
}

// controlPlane bundles everything the Gateway Core (spec §4.6) needs:
// persistence, auth, rate limiting, feature gating, routing, and usage
// recording, all backed by one shared cache and one SQL store.
type controlPlane struct {
	Store    *store.SQLStore
	Secrets  *secrets.Client
	Vault    *credentials.Vault
	Sessions *auth.SessionManager
	Core     *pipeline.Core
	Recorder *usagerecorder.Recorder
	Audit    *audit.SQLWriter
}

func (c *controlPlane) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Audit != nil {
		_ = c.Audit.Close()
	}
}

func newControlPlane(registry *providers.Registry, catalog models.Catalog) (*controlPlane, error) {
	sqlStore, err := openStore()
	if err != nil {
		return nil, fmt.Errorf("open control-plane store: %w", err)
	}

	auditWriter, err := openAuditWriter()
	if err != nil {
		_ = sqlStore.Close()
		return nil, fmt.Errorf("open audit writer: %w", err)
	}

	cache, err := openCache()
	if err != nil {
		_ = sqlStore.Close()
		_ = auditWriter.Close()
		return nil, fmt.Errorf("open shared cache: %w", err)
	}

	encKey := os.Getenv("ENCRYPTION_KEY")
	if encKey == "" {
		encKey = "dev-only-encryption-key-do-not-use-in-prod"
		log.Println("Warning: ENCRYPTION_KEY not set, using an insecure development key")
	}

	sessionSecret := os.Getenv("SECRET_KEY")
	if sessionSecret == "" {
		sessionSecret = auth.GenerateDevSecret()
		log.Println("Warning: SECRET_KEY not set, generated an ephemeral session signing key")
	}
	sessions, err := auth.NewSessionManager(sessionSecret, 24*time.Hour)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}

	recorder := usagerecorder.New(requestWriter{sqlStore}, 1000, 4, usagerecorder.WithManagedUsageWriter(managedUsageWriter{sqlStore}))

	core := &pipeline.Core{
		KeyAuth:   auth.NewKeyAuthenticator(keyLookup{sqlStore}),
		Gate:      featuregate.NewGate(cache),
		RateLimit: ratelimit.NewFixedWindowLimiter(cache),
		Routing:   routing.NewEngine(cache),
		Orgs:      orgLookup{sqlStore},
		Invoker:   registryInvoker{registry},
		Recorder:  recorder,
		Registry:  registry,
		Catalog:   catalog,
	}

	return &controlPlane{
		Store:    sqlStore,
		Secrets:  secrets.NewFromEnv(),
		Vault:    credentials.NewVault(encKey),
		Sessions: sessions,
		Core:     core,
		Recorder: recorder,
		Audit:    auditWriter,
	}, nil
}

func openStore() (*store.SQLStore, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return store.NewPostgresStore(dsn)
	}
	dsn := os.Getenv("SQLITE_PATH")
	if dsn == "" {
		dsn = "bonitogw-control-plane.db"
	}
	return store.NewSQLiteStore(dsn)
}

// openAuditWriter opens the audit_logs sink alongside the control-plane
// store, using the same DSN selection (DATABASE_URL for Postgres,
// SQLITE_PATH otherwise) so both land in the same database in the
// common single-instance deployment.
func openAuditWriter() (*audit.SQLWriter, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return audit.NewPostgresWriter(dsn)
	}
	dsn := os.Getenv("SQLITE_PATH")
	if dsn == "" {
		dsn = "bonitogw-control-plane.db"
	}
	return audit.NewSQLiteWriter(dsn)
}

func openCache() (sharedcache.Client, error) {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return sharedcache.NewRedis(context.Background(), url)
	}
	return sharedcache.NewMemory(), nil
}

// registryInvoker adapts providers.Registry to pipeline.Invoker.
type registryInvoker struct{ registry *providers.Registry }

func (r registryInvoker) Invoke(ctx context.Context, providerID string, req providers.Request) (*providers.Response, error) {
	p, ok := r.registry.Get(providerID)
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", providerID)
	}
	return p.Complete(ctx, req)
}

// keyLookup adapts store.SQLStore to auth.KeyLookup.
type keyLookup struct{ store *store.SQLStore }

func (k keyLookup) LookupByHash(ctx context.Context, keyHash string) (auth.KeyRecord, error) {
	rec, err := k.store.GetGatewayKeyByHash(ctx, keyHash)
	if err != nil {
		return auth.KeyRecord{}, err
	}
	return auth.KeyRecord{
		KeyID:         rec.ID,
		OrgID:         rec.OrgID,
		TeamID:        rec.TeamID,
		RateLimit:     rec.RateLimit,
		AllowedModels: rec.AllowedModels,
		Revoked:       rec.RevokedAt != nil,
	}, nil
}

// orgLookup adapts store.SQLStore to pipeline.OrgLookup.
type orgLookup struct{ store *store.SQLStore }

func (o orgLookup) GetOrganization(ctx context.Context, id string) (store.Organization, error) {
	return o.store.GetOrganization(ctx, id)
}
func (o orgLookup) GetGatewayConfig(ctx context.Context, orgID string) (store.GatewayConfig, error) {
	return o.store.GetGatewayConfig(ctx, orgID)
}
func (o orgLookup) GetRoutingPolicyByKeyPrefix(ctx context.Context, prefix string) (store.RoutingPolicy, error) {
	return o.store.GetRoutingPolicyByKeyPrefix(ctx, prefix)
}

// requestWriter adapts store.SQLStore to usagerecorder.Writer. The
// teacher's control-plane store doesn't carry a GatewayRequest insert
// (request history lives in internal/requestlog); this appends one,
// grounded in that store's CreateGatewayKey/init DDL idiom.
type requestWriter struct{ store *store.SQLStore }

func (w requestWriter) Write(ctx context.Context, req store.GatewayRequest) error {
	return w.store.CreateGatewayRequest(ctx, req)
}

// managedUsageWriter adapts store.SQLStore + internal/billing's markup to
// usagerecorder.ManagedUsageWriter.
type managedUsageWriter struct{ store *store.SQLStore }

func (w managedUsageWriter) IncrementManagedUsage(ctx context.Context, providerID string, tokens int64, cost float64) error {
	if !billing.IsManagedProvider(providerID) {
		return nil
	}
	return w.store.IncrementManagedUsage(ctx, providerID, tokens, billing.MarkedUpCost(cost))
}

// newRouter builds the HTTP router: the authenticated data-plane surface
// (spec §4.1/§4.2, routed through the pipeline.Core), the control-plane
// session/admin surface, and the legacy unauthenticated proxy paths kept
// for local/dev use without a control plane configured.
func newRouter(registry *providers.Registry, keyStore admin.Store, corsOrigins []string, gw *gatewaycore.Gateway, cp *controlPlane, catalog models.Catalog) http.Handler {
	if gw == nil {
		if created, err := gatewaycore.New(*defaultConfig(registry)); err == nil {
			for _, name := range registry.List() {
				if p, ok := registry.Get(name); ok {
					created.RegisterProvider(p)
				}
			}
			gw = created
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(admission.Chain(admission.DefaultMaxBodyBytes, corsOrigins...))
	if cp != nil && cp.Audit != nil {
		r.Use(audit.Middleware(cp.Audit, func(err error) {
			log.Printf("audit write failed: %v", err)
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/v1/models", func(w http.ResponseWriter, _ *http.Request) {
		raw := registry.AllModels()
		data := make([]EnrichedModelInfo, len(raw))
		for i, m := range raw {
			data[i] = enrichFromCatalog(catalog, m.OwnedBy, m.ID)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data":   data,
		})
	})

	adminHandlers := &admin.Handlers{
		Keys:      keyStore,
		Providers: registry,
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.AuthMiddleware(keyStore))
		r.Mount("/", adminHandlers.Routes())
	})

	// Authenticated data-plane chat-completions, run through the full
	// Gateway Core pipeline when a control plane is configured.
	r.Post("/v1/chat/completions", chatCompletionsHandler(registry, gw, cp))

	// Legacy text completions (e.g. gpt-3.5-turbo-instruct, deepseek-chat).
	// Proxies natively to providers that support it, or shims via chat for others.
	r.Post("/v1/completions", completionsHandler(registry))

	// Embeddings (spec §4.1), run through the same authenticated pipeline
	// as chat completions when a bearer key and control plane are present.
	r.Post("/v1/embeddings", embeddingsHandler(registry, gw, cp))

	// Image generation, dispatched through the library-level Gateway's own
	// provider routing (out of scope for the pipeline per spec §1).
	r.Post("/v1/images/generations", imagesHandler(gw))

	// Proxy pass-through: forward any unhandled /v1/* request to the upstream
	// provider.  This covers files, batches, fine-tuning, audio, images/edits,
	// responses API, realtime, etc. without needing a dedicated handler.
	// Must be registered LAST so explicit routes take precedence.
	r.HandleFunc("/v1/*", proxyHandler(registry))

	return r
}

// chatCompletionsHandler serves /v1/chat/completions, streaming or not.
// When an Authorization bearer key is present and a control plane is
// wired, every request — streaming included — runs through
// pipeline.Core's authenticate/gate/rate-limit/route stages first (spec
// §1's single authenticated entry point). Only when neither is present
// does it fall back to the library-level Gateway's own strategy
// routing, so a bare `go run` with only provider env vars still serves
// requests.
func chatCompletionsHandler(registry *providers.Registry, gw *gatewaycore.Gateway, cp *controlPlane) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req providers.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}
		if err := req.Validate(); err != nil {
			writeOpenAIError(w, http.StatusBadRequest, err.Error(), "invalid_request_error")
			return
		}

		if bearer := r.Header.Get("Authorization"); bearer != "" && cp != nil {
			if req.Stream {
				serveAuthenticatedStream(r.Context(), w, r, registry, cp, bearer, req)
				return
			}
			out, err := cp.Core.Serve(r.Context(), bearer, req)
			if err != nil {
				writeCategorizedError(w, r, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out.Response)
			return
		}

		if !hasModelProvider(registry, req.Model) {
			writeOpenAIError(w, http.StatusBadRequest, "no provider supports model: "+req.Model, "invalid_request_error")
			return
		}
		if req.Stream {
			if !hasStreamingProviderForModel(registry, req.Model) {
				writeOpenAIError(w, http.StatusBadRequest, "provider does not support streaming", "invalid_request_error")
				return
			}
			ch, err := gw.RouteStream(r.Context(), req)
			if err != nil {
				writeOpenAIError(w, http.StatusInternalServerError, err.Error(), "server_error")
				return
			}
			writeSSE(w, ch)
			return
		}
		resp, err := gw.Route(r.Context(), req)
		if err != nil {
			writeOpenAIError(w, http.StatusInternalServerError, err.Error(), "server_error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// serveAuthenticatedStream runs a streaming chat completion through
// pipeline.Core.Authorize, then dispatches to the first ordered
// candidate that supports CompleteStream, recording the outcome once
// the stream finishes. Streaming responses don't surface per-chunk
// usage, so the recorded row carries latency and status but no token
// counts.
func serveAuthenticatedStream(ctx context.Context, w http.ResponseWriter, r *http.Request, registry *providers.Registry, cp *controlPlane, bearer string, req providers.Request) {
	az, err := cp.Core.Authorize(ctx, bearer, req.Model, 0, 256)
	if err != nil {
		writeCategorizedError(w, r, err)
		return
	}

	providerID, ok := firstStreamingCandidate(registry, az.Ordered)
	if !ok {
		writeCategorizedError(w, r, bonitoerr.New(bonitoerr.KindNotFound, "no streaming-capable provider for model: "+req.Model))
		return
	}
	p, _ := registry.Get(providerID)
	streamer := p.(providers.StreamProvider)

	start := time.Now()
	ch, err := streamer.CompleteStream(ctx, req)
	if err != nil {
		cp.Core.RecordOutcome(*az, req.Model, providerID, time.Since(start), providers.Usage{}, err.Error())
		writeCategorizedError(w, r, pipeline.ClassifyUpstreamError(err))
		return
	}
	writeSSE(w, ch)
	cp.Core.RecordOutcome(*az, req.Model, providerID, time.Since(start), providers.Usage{}, "")
}

func firstStreamingCandidate(registry *providers.Registry, ordered []routing.Candidate) (string, bool) {
	for _, cand := range ordered {
		p, ok := registry.Get(cand.ProviderID)
		if !ok {
			continue
		}
		if _, ok := p.(providers.StreamProvider); ok {
			return cand.ProviderID, true
		}
	}
	return "", false
}

// writeCategorizedError writes a bonitoerr.Error (or any other error,
// treated as internal) as the gateway's uniform JSON error envelope,
// including the request id chi's admission middleware assigned and,
// for rate-limited requests, a Retry-After header.
func writeCategorizedError(w http.ResponseWriter, r *http.Request, err error) {
	var berr *bonitoerr.Error
	status := http.StatusInternalServerError
	code := string(bonitoerr.KindInternal)
	if errors.As(err, &berr) {
		status = berr.Status()
		code = string(berr.Kind)
		if berr.Kind == bonitoerr.KindRateLimited {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", berr.RetryAfterSeconds))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error": map[string]interface{}{
			"code":    code,
			"message": err.Error(),
		},
		"request_id": middleware.GetReqID(r.Context()),
	})
}

// writeOpenAIError writes an OpenAI-compatible JSON error response.
func writeOpenAIError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    errType,
		},
	})
}

// writeSSE streams SSE chunks from ch to the response writer.
func writeSSE(w http.ResponseWriter, ch <-chan providers.StreamChunk) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	now := time.Now().Unix()
	for chunk := range ch {
		if chunk.Error != nil {
			errData := fmt.Sprintf(`{"error":{"message":"%s","type":"stream_error"}}`, chunk.Error.Error())
			_, _ = fmt.Fprintf(w, "data: %s\n\n", errData)
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if chunk.Object == "" {
			chunk.Object = "chat.completion.chunk"
		}
		if chunk.Created == 0 {
			chunk.Created = now
		}
		data, _ := json.Marshal(chunk)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}

func hasModelProvider(registry *providers.Registry, model string) bool {
	_, ok := registry.FindByModel(model)
	return ok
}

func hasStreamingProviderForModel(registry *providers.Registry, model string) bool {
	for _, name := range registry.List() {
		p, ok := registry.Get(name)
		if !ok || !p.SupportsModel(model) {
			continue
		}
		if _, ok := p.(providers.StreamProvider); ok {
			return true
		}
	}
	return false
}
