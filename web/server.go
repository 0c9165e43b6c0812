package web

import (
	"litman/web/api"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// tokenRequestsPerMinute caps credential exchanges per client address.
const tokenRequestsPerMinute = 10

// NewServer creates and configures the RWeb server for one node.
func NewServer(opts rweb.ServerOptions, deps api.Deps) *rweb.Server {
	s := rweb.NewServer(opts)

	s.Use(rweb.RequestInfo)
	s.Use(SecurityHeadersMiddleware)
	s.Use(LoggingMiddleware)
	s.Use(RateLimitMiddleware("/api/v1/auth/token", tokenRequestsPerMinute))
	s.Use(AuthMiddleware(deps))

	setupRoutes(s, api.New(deps))
	SetupStaticFiles(s)

	return s
}

// Run starts the server and blocks until it stops.
func Run(s *rweb.Server, address string) error {
	logger.Info("litman web server starting", "address", address)
	return s.Run()
}
