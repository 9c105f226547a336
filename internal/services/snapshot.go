package services

import (
	"sort"

	"nocaps-server/internal/domain"
)

// project renders a match for the outside world. Connection ids stay behind.
func project(m *match) domain.MatchSnapshot {
	cameras := make([]domain.CameraSnapshot, 0, len(m.cameras))
	for _, cam := range m.cameras {
		cameras = append(cameras, domain.CameraSnapshot{
			Number:      cam.number,
			Role:        cam.role,
			IsStreaming: cam.isStreaming,
		})
	}
	sort.Slice(cameras, func(i, j int) bool {
		return cameras[i].Number < cameras[j].Number
	})

	return domain.MatchSnapshot{
		Code:      m.code,
		Title:     m.title,
		TeamA:     m.teamA,
		TeamB:     m.teamB,
		Sport:     m.sport,
		Venue:     m.venue,
		CreatedAt: m.createdAt,
		IsLive:    m.isLive,
		Cameras:   cameras,
	}
}
