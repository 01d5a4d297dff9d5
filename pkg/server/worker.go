package server

import (
	"context"
	"errors"
	"time"
)

// worker runs a cycle immediately and then once per interval.
func (s *Server) worker(ctx context.Context) {
	defer s.wg.Done()

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycle(ctx)
		case <-ctx.Done():
			s.logger.Info("Cycle worker received shutdown signal.")
			return
		}
	}
}

func (s *Server) runCycle(ctx context.Context) {
	start := time.Now()
	changed, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.logger.Errorf("Cycle failed: %v", err)
	default:
		s.logger.Infof("Cycle finished in %v, changed=%v", time.Since(start).Round(time.Millisecond), changed)
	}
}
