// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"convtrack/api/channels"
	"convtrack/api/config"
	"convtrack/api/database"
	"convtrack/api/dedup"
	"convtrack/api/geo"
	"convtrack/api/handlers"
	"convtrack/api/handoff"
	"convtrack/api/middleware"
	"convtrack/api/pipeline"
	"convtrack/api/ratelimit"
	"convtrack/api/store"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.GinMode == "release" || os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- PostgreSQL (operator accounts + known customers) ---
	// The pipeline treats missing persistent storage as "no supplemental
	// data available": startup continues without it.
	var userStore *store.UserStore
	var customerStore *store.CustomerStore
	dbClient, err := database.NewPostgresDB()
	if err != nil {
		log.Printf("PostgreSQL unavailable, continuing without auth and customer backfill: %v", err)
	} else {
		defer dbClient.Close()
		userStore = store.NewUserStore(dbClient.DB)
		customerStore = store.NewCustomerStore(dbClient.DB)
	}

	// --- ClickHouse (delivery outcome ledger) ---
	var outcomeStore *store.OutcomeStore
	chClient, err := database.NewClickHouseDB()
	if err != nil {
		log.Printf("ClickHouse unavailable, continuing without the outcome ledger: %v", err)
	} else {
		defer chClient.Close()
		outcomeStore = store.NewOutcomeStore(chClient)
	}

	// --- Pipeline stores ---
	webhookDedup := newDedupStore(cfg, cfg.WebhookDedupTTL(), "dedup:webhook")
	defer webhookDedup.Close()
	eventDedup := newDedupStore(cfg, cfg.EventDedupTTL(), "dedup:event")
	defer eventDedup.Close()

	limiter := ratelimit.NewLimiter()
	defer limiter.Stop()

	handoffCache := handoff.NewCache()
	defer handoffCache.Stop()

	resolver := geo.NewResolver(cfg.GeoCacheTTL(),
		geo.NewIPAPIProvider(cfg.GeoPrimaryURL),
		geo.NewIPWhoisProvider(cfg.GeoFallbackURL),
	)

	// --- Delivery channels ---
	deliveryChannels := []channels.Channel{
		channels.NewPixelRelay(handoffCache, cfg.HandoffTTL()),
	}
	if cfg.CAPIEndpoint != "" && cfg.CAPIAccessToken != "" {
		deliveryChannels = append(deliveryChannels, channels.NewConversionsAPI(cfg.CAPIEndpoint, cfg.CAPIAccessToken))
	}
	if brokers := cfg.GetKafkaBrokers(); len(brokers) > 0 && cfg.KafkaTopic != "" {
		kafkaChannel, err := channels.NewKafkaChannel(brokers, cfg.KafkaTopic)
		if err != nil {
			log.Printf("Kafka unavailable, continuing without the warehouse channel: %v", err)
		} else {
			defer kafkaChannel.Close()
			deliveryChannels = append(deliveryChannels, kafkaChannel)
		}
	}
	log.Printf("Dispatching to %d delivery channels", len(deliveryChannels))

	// --- Dispatchers (one per ingestion path, each with its own window) ---
	webDispatcher := newDispatcher(cfg, deliveryChannels, eventDedup, limiter, resolver, customerStore, outcomeStore)
	webhookDispatcher := newDispatcher(cfg, deliveryChannels, webhookDedup, limiter, resolver, customerStore, outcomeStore)

	// --- Handlers ---
	eventHandlers := handlers.NewEventHandlers(webDispatcher, webhookDispatcher, handoffCache, resolver, cfg.HandoffTTL())

	r := gin.Default()
	r.Use(middleware.CORSMiddleware())

	api := r.Group("/api")
	{
		if userStore != nil {
			authHandlers := handlers.NewAuthHandlers(userStore)
			api.POST("/signup", authHandlers.Signup)
			api.POST("/login", authHandlers.Login)
			api.POST("/logout", authHandlers.Logout)
		}

		ingest := api.Group("/")
		ingest.Use(middleware.RateLimit(limiter, cfg.RateLimitEvents, cfg.RateLimitWindow(), func(c *gin.Context) string {
			if source := c.Param("source"); source != "" {
				return "ingest:webhook:" + source
			}
			return "ingest:ip:" + c.ClientIP()
		}))
		{
			ingest.POST("/events", eventHandlers.CaptureEvent)
			ingest.POST("/webhooks/:source", eventHandlers.ProcessWebhook)
		}

		api.POST("/handoff", eventHandlers.CreateHandoff)
		api.GET("/handoff/:key", eventHandlers.GetHandoff)
		api.GET("/handoff/:key/info", eventHandlers.HandoffInfo)
		api.GET("/geo", eventHandlers.ResolveGeo)

		if outcomeStore != nil {
			statsHandlers := handlers.NewStatsHandlers(outcomeStore)
			protected := api.Group("/stats")
			protected.Use(middleware.AuthRequired())
			{
				protected.GET("/deliveries", statsHandlers.GetDeliveriesOverTime)
				protected.GET("/channel-success", statsHandlers.GetChannelSuccessRates)
				protected.GET("/top-events", statsHandlers.GetTopEvents)
			}
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Go API server starting on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Go API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}

// newDedupStore picks the configured backend, falling back to the
// in-process ledger when Redis cannot be reached.
func newDedupStore(cfg *config.Config, ttl time.Duration, prefix string) dedup.Store {
	if cfg.DedupBackend == "redis" {
		redisStore, err := dedup.NewRedisStore(cfg.RedisAddr, ttl, prefix)
		if err == nil {
			log.Printf("Using Redis dedup store for %s (ttl=%s)", prefix, ttl)
			return redisStore
		}
		log.Printf("Redis unavailable for %s, falling back to in-memory dedup: %v", prefix, err)
	}
	return dedup.NewMemoryStore(ttl)
}

func newDispatcher(cfg *config.Config, chs []channels.Channel, ded dedup.Store, limiter *ratelimit.Limiter, resolver *geo.Resolver, customers *store.CustomerStore, outcomes *store.OutcomeStore) *pipeline.Dispatcher {
	d := pipeline.NewDispatcher(chs, ded, limiter)
	d.Geo = resolver
	d.Customers = customers
	d.Outcomes = outcomes
	d.RateLimit = cfg.RateLimitEvents
	d.RateWindow = cfg.RateLimitWindow()
	d.ChannelTimeout = cfg.ChannelTimeout()
	return d
}
