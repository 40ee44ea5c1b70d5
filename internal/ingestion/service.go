package ingestion

import (
	"github.com/gin-gonic/gin"
	"github.com/rohanmalviya/simian/internal/core/storage"
)

// Service accepts client reports and appends them to the backing logs.
// Summarization never runs inline; the cron jobs pick the events up later.
type Service struct {
	msuLog     storage.MSULogAppender
	installLog storage.InstallLogAppender
}

func NewService(msuLog storage.MSULogAppender, installLog storage.InstallLogAppender) *Service {
	if msuLog == nil {
		panic("ingestion: msu log must not be nil")
	}
	if installLog == nil {
		panic("ingestion: install log must not be nil")
	}
	return &Service{
		msuLog:     msuLog,
		installLog: installLog,
	}
}

// RegisterRoutes registers the ingestion routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events/msu", s.IngestMSUHandler)
	r.POST("/v1/events/install", s.IngestInstallHandler)
}
