package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChatQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mlfolio_chat_query_duration_seconds",
			Help:    "Chat query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	ChatQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlfolio_chat_queries_total",
			Help: "Total chat queries processed",
		},
		[]string{"status"},
	)

	ContextChunksUsed = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mlfolio_context_chunks_used",
			Help:    "Number of context chunks per answered query",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlfolio_llm_tokens_used_total",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlfolio_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlfolio_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ScrapeJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlfolio_scrape_jobs_total",
			Help: "Total scrape jobs by source and outcome",
		},
		[]string{"source", "status"},
	)

	PapersUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlfolio_papers_upserted_total",
			Help: "Papers written via webhooks, by outcome",
		},
		[]string{"outcome"},
	)

	DocumentsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mlfolio_documents_processed_total",
			Help: "Total documents run through the processing pipeline",
		},
	)

	VectorStoreDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mlfolio_vector_store_documents",
			Help: "Current number of chunks in the vector store",
		},
	)

	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mlfolio_webhook_deliveries_total",
			Help: "Inbound webhook deliveries by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)
)

func Init() {
	prometheus.MustRegister(ChatQueryDuration)
	prometheus.MustRegister(ChatQueriesTotal)
	prometheus.MustRegister(ContextChunksUsed)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(ScrapeJobsTotal)
	prometheus.MustRegister(PapersUpserted)
	prometheus.MustRegister(DocumentsProcessed)
	prometheus.MustRegister(VectorStoreDocuments)
	prometheus.MustRegister(WebhookDeliveries)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
