package ingestion

import (
	"github.com/aevon-lab/matview/internal/core/partition"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// Recorder counts ingestion results. *metrics.Collector satisfies it.
type Recorder interface {
	RecordIngested(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordIngested(string) {}

type Service struct {
	store            storage.RecordStore
	partitions       int
	maxBodySizeBytes int
	recorder         Recorder
}

func NewService(repo storage.RecordStore, partitions int, maxBodySizeMB int, recorder Recorder) *Service {
	if repo == nil {
		panic("ingestion: store must not be nil")
	}
	if partitions <= 0 {
		partitions = partition.DefaultCount
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		store:            repo,
		partitions:       partitions,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
		recorder:         recorder,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/records", s.IngestHandler)
}
