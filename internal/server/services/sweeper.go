package services

import (
	"context"
	"time"
)

// RunSweeper calls SweepExpired every interval until ctx is done. Failures
// are logged and the loop keeps going.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.logger.Error(ctx, "refresh token sweep failed", "error", err)
			}
		}
	}
}
