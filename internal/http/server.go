package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"findash/internal/amqp"
	"findash/internal/cache"
	"findash/internal/dashboard"
	"findash/internal/log"
	"findash/internal/middleware/ratelimit"
	"findash/internal/middleware/security"
	"findash/internal/middleware/trace"
	"findash/internal/sources"
)

const (
	defaultTransactionsCacheTTL = 5 * time.Minute
	defaultFetchTimeout         = 10 * time.Second
	cacheCleanupInterval        = 10 * time.Minute
)

// ImportPublisher queues a data file for import.
type ImportPublisher interface {
	PublishImport(ctx context.Context, msg *amqp.ImportFileMessage) error
}

// Options wires the server's collaborators. Source and Monitor are
// required; a nil Publisher disables the import endpoint.
type Options struct {
	Source    sources.Source
	Monitor   *dashboard.Monitor
	Publisher ImportPublisher
	Logger    *log.Logger

	RateLimit            ratelimit.Config
	CORS                 security.CORSConfig
	TransactionsCacheTTL time.Duration
	FetchTimeout         time.Duration

	// Ready reports whether backing services are reachable. Nil means
	// always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	source    sources.Source
	monitor   *dashboard.Monitor
	publisher ImportPublisher
	ready     func(ctx context.Context) error
	logger    *log.Logger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	cacheManager     *cache.Manager

	// Raw transactions per file, before query filters.
	txCache      *gocache.Cache
	fetchTimeout time.Duration

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	cacheHits     int64
	cacheMisses   int64
	importsQueued int64
	uptime        time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	ttl := opts.TransactionsCacheTTL
	if ttl <= 0 {
		ttl = defaultTransactionsCacheTTL
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	rl := opts.RateLimit
	if rl.RequestsPerSecond <= 0 {
		rl = ratelimit.DefaultConfig()
	}
	cors := opts.CORS
	if len(cors.AllowedOrigins) == 0 {
		cors = security.DefaultCORSConfig()
	}

	s := &Server{
		source:           opts.Source,
		monitor:          opts.Monitor,
		publisher:        opts.Publisher,
		ready:            opts.Ready,
		logger:           logger,
		securityDetector: security.NewDetector(logger),
		rateLimiter:      ratelimit.NewLimiter(rl),
		txCache:          gocache.New(ttl, cacheCleanupInterval),
		fetchTimeout:     fetchTimeout,
		cacheManager:     cache.NewManager(logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	if s.monitor != nil {
		if c, ok := s.monitor.ConversionCache().(cache.Cleaner); ok {
			s.cacheManager.Register(c)
		}
	}
	s.cacheManager.StartCleanup(cacheCleanupInterval)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Raw data API
	mux.HandleFunc("GET /files", s.handleListFiles)
	mux.HandleFunc("GET /transactions/{filename}", s.handleTransactions)
	mux.HandleFunc("GET /summary/{filename}", s.handleSummary)

	// Dashboard API
	mux.HandleFunc("GET /api/files", s.handleDashboardFiles)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("PUT /api/file", s.handleSelectFile)
	mux.HandleFunc("GET /api/filter", s.handleGetFilter)
	mux.HandleFunc("PUT /api/filter", s.handleSetFilter)
	mux.HandleFunc("DELETE /api/filter", s.handleClearFilter)
	mux.HandleFunc("POST /api/filter/currencies/{code}", s.handleToggleCurrency)
	mux.HandleFunc("GET /api/transactions", s.handleDashboardTransactions)
	mux.HandleFunc("GET /api/summary", s.handleDashboardSummary)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("PUT /api/timeline", s.handleTimelineSettings)
	mux.HandleFunc("POST /api/interactions", s.handleInteraction)
	mux.HandleFunc("GET /api/selection", s.handleGetSelection)
	mux.HandleFunc("POST /api/selection/{channel}", s.handleSelect)
	mux.HandleFunc("DELETE /api/selection/{channel}", s.handleClearSelection)
	mux.Handle("POST /api/files/{filename}/import",
		log.ComponentMiddleware(log.ComponentAMQP)(http.HandlerFunc(s.handleImport)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	onLimit := func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
			log.FieldPath, r.URL.Path)
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").
			Header("Retry-After", "1").
			Write(w)
	}

	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, onLimit)(handler)
	handler = security.CORS(cors)(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
