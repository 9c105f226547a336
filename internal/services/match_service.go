package services

import (
	"context"

	"nocaps-server/internal/domain"
	"nocaps-server/pkg/logger"
)

// MatchService is what the REST API talks to.
type MatchService struct {
	registry *MatchRegistry
	conns    domain.ConnectionManager
	events   domain.MatchEventPublisher
	log      logger.Logger
}

func NewMatchService(registry *MatchRegistry, conns domain.ConnectionManager,
	events domain.MatchEventPublisher, log logger.Logger) *MatchService {
	return &MatchService{
		registry: registry,
		conns:    conns,
		events:   events,
		log:      log,
	}
}

func (s *MatchService) CreateMatch(ctx context.Context, params domain.CreateMatchParams) (domain.MatchSnapshot, error) {
	snapshot, err := s.registry.CreateMatch(params)
	if err != nil {
		return domain.MatchSnapshot{}, err
	}

	if s.events != nil {
		if err := s.events.PublishMatchEvent(ctx, newMatchEvent(domain.MatchCreated, snapshot, 0)); err != nil {
			s.log.Debug("Match event not published", "type", domain.MatchCreated, "error", err)
		}
	}

	s.log.Info("Match created", "match_code", snapshot.Code, "title", snapshot.Title)
	return snapshot, nil
}

func (s *MatchService) GetMatch(ctx context.Context, code string) (domain.MatchSnapshot, error) {
	return s.registry.GetMatch(code)
}

func (s *MatchService) ListMatches(ctx context.Context) []domain.MatchSnapshot {
	return s.registry.ListMatches()
}

type ServiceStats struct {
	domain.RegistryStats
	Connections int `json:"connections"`
}

func (s *MatchService) Stats() ServiceStats {
	return ServiceStats{
		RegistryStats: s.registry.Stats(),
		Connections:   s.conns.ConnectionCount(),
	}
}
