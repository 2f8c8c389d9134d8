package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/kb-retrieval/internal/core/ports"
	"github.com/kirillkom/kb-retrieval/internal/observability/metrics"
)

const serviceName = "kb-retrieval-api"

// Server wires the retrieval services into the HTTP surface.
type Server struct {
	search   ports.SearchService
	answers  ports.AnswerService
	feedback ports.FeedbackService
	indexer  ports.Indexer
	items    ports.KBItemStore
	caches   ports.CacheAdmin
	metrics  *metrics.HTTPServerMetrics
	logger   *slog.Logger
}

func NewServer(
	search ports.SearchService,
	answers ports.AnswerService,
	feedback ports.FeedbackService,
	indexer ports.Indexer,
	items ports.KBItemStore,
	caches ports.CacheAdmin,
	m *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		search:   search,
		answers:  answers,
		feedback: feedback,
		indexer:  indexer,
		items:    items,
		caches:   caches,
		metrics:  m,
		logger:   logger,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/search", s.handleSearch)
	mux.HandleFunc("POST /v1/answers", s.handleAnswer)
	mux.HandleFunc("POST /v1/feedback", s.handleFeedback)
	mux.HandleFunc("POST /v1/index", s.handleIndex)
	mux.HandleFunc("GET /v1/items/{id}", s.handleGetItem)
	mux.HandleFunc("POST /v1/cache/invalidate", s.handleCacheInvalidate)
	mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = s.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}
