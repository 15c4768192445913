package api

import (
	"context"

	"docintake/common"
	"docintake/deduplication"
	"docintake/jobs"
	"docintake/observability"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the services the HTTP surface is built over.
type Deps struct {
	Jobs           *jobs.Manager
	Detector       *deduplication.Detector
	Metrics        *observability.Metrics
	Logger         *common.Logger
	MaxUploadBytes int64
	// ServiceName enables otelgin spans when non-empty.
	ServiceName string
	// QueueConfigured controls whether /healthz probes the queue.
	QueueConfigured bool
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID())
	if d.ServiceName != "" {
		r.Use(otelgin.Middleware(d.ServiceName))
	}
	r.Use(RequestLogger(d.Logger), Metrics(d.Metrics))
	if d.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = d.MaxUploadBytes
	}

	RegisterJobRoutes(r, NewJobsController(d.Jobs, d.Logger))
	RegisterQueueRoutes(r, NewQueueController(d.Jobs, d.Logger))
	if d.Detector != nil {
		RegisterDeduplicationRoutes(r, NewDeduplicationController(d.Detector, d.Logger, d.MaxUploadBytes))
	}
	RegisterHealthRoutes(r, healthChecks(d))
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	return r
}

func healthChecks(d Deps) map[string]Pinger {
	checks := map[string]Pinger{}
	if d.QueueConfigured {
		checks["queue"] = d.Jobs.PingQueue
	}
	if d.Detector != nil {
		checks["storage"] = d.Detector.Ping
	} else {
		checks["storage"] = func(context.Context) error { return nil }
	}
	return checks
}
