package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/devenwen/callme-gate/internal/metrics"
)

// Server is a thin wrapper around the gin engine, mirroring the teacher's
// internal/http.Server.
type Server struct {
	Engine *gin.Engine
}

func NewServer(h *Handlers, mc *metrics.Collector) *Server {
	return &Server{Engine: NewRouter(h, mc)}
}

func (s *Server) Run(addr string) error {
	return s.Engine.Run(addr)
}
