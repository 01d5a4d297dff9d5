package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// handler builds the API mux wrapped in the middleware stack.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api", s.handleAPI)
	mux.HandleFunc("/api/checks/{name}", s.handleCheckAPI)
	mux.HandleFunc("/api/summary", s.handleSummaryAPI)
	mux.HandleFunc("/metrics", s.handlePrometheus)

	rl := newRateLimitMiddleware(s.limiter)
	return requireGET(rl(noCacheMiddleware(securityHeadersMiddleware(mux))))
}

// startAPI binds the listen address and serves the API in a goroutine.
func (s *Server) startAPI() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("server: could not listen on %s: %w", s.listen, err)
	}
	s.addr = ln.Addr()

	s.httpSrv = &http.Server{
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Infof("Starting API server on %v...", s.addr)
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("API server failed: %v", err)
		}
	}()
	return nil
}
