package services

import (
	"github.com/robfig/cron/v3"

	"nocaps-server/pkg/logger"
)

// StatsReporter periodically logs registry and connection counts.
type StatsReporter struct {
	cron     *cron.Cron
	schedule string
	matches  *MatchService
	log      logger.Logger
}

func NewStatsReporter(matches *MatchService, schedule string, log logger.Logger) *StatsReporter {
	return &StatsReporter{
		cron:     cron.New(),
		schedule: schedule,
		matches:  matches,
		log:      log,
	}
}

func (s *StatsReporter) Start() error {
	s.log.Info("Starting stats reporter", "schedule", s.schedule)

	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.Report()
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *StatsReporter) Stop() {
	s.log.Info("Stopping stats reporter")
	<-s.cron.Stop().Done()
}

func (s *StatsReporter) Report() ServiceStats {
	stats := s.matches.Stats()
	s.log.Info("Relay stats",
		"matches", stats.Matches,
		"live_matches", stats.LiveMatches,
		"cameras", stats.Cameras,
		"streaming", stats.Streaming,
		"connections", stats.Connections)
	return stats
}
