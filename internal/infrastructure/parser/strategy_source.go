package parser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"NewsRelay/internal/domain"
	"NewsRelay/internal/ports"
	"NewsRelay/internal/scanner"
)

// HealthRecorder receives one call per fetched source.
type HealthRecorder interface {
	SourceFetched(source string, err error, entries int)
}

// StrategySource implements ports.EntrySource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	recorder HealthRecorder
	logger   *zap.Logger
}

var _ ports.EntrySource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry.
func NewStrategySource(reg *scanner.Registry, recorder HealthRecorder, logger *zap.Logger) *StrategySource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategySource{registry: reg, recorder: recorder, logger: logger}
}

// FetchSource resolves the scanner configured for src and runs it.
func (s *StrategySource) FetchSource(ctx context.Context, src domain.Source) ([]domain.FeedEntry, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}
	strategy, err := s.registry.Resolve(src.Kind)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.Name, err)
	}

	entries, err := strategy.Scan(ctx, src)
	if s.recorder != nil {
		s.recorder.SourceFetched(src.Name, err, len(entries))
	}
	if err != nil {
		return nil, fmt.Errorf("scan source %s: %w", src.Name, err)
	}

	s.logger.Debug("source produced entries",
		zap.String("source", src.Name),
		zap.String("scanner", src.Kind),
		zap.Int("count", len(entries)))
	return entries, nil
}
