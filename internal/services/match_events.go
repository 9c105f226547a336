package services

import (
	"time"

	"github.com/google/uuid"

	"nocaps-server/internal/domain"
)

func newMatchEvent(eventType domain.MatchEventType, snapshot domain.MatchSnapshot, cameraNumber int) *domain.MatchEvent {
	return &domain.MatchEvent{
		ID:           uuid.NewString(),
		Type:         eventType,
		MatchCode:    snapshot.Code,
		CameraNumber: cameraNumber,
		IsLive:       snapshot.IsLive,
		Timestamp:    time.Now().UTC(),
	}
}
