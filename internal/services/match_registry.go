package services

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"nocaps-server/internal/domain"
)

type cameraSlot struct {
	number       int
	connectionID string
	role         string
	isStreaming  bool
}

type match struct {
	code      string
	title     string
	teamA     string
	teamB     string
	sport     string
	venue     string
	createdAt time.Time
	seq       uint64
	isLive    bool
	cameras   map[int]*cameraSlot
}

func (m *match) recomputeLive() {
	m.isLive = false
	for _, cam := range m.cameras {
		if cam.isStreaming {
			m.isLive = true
			return
		}
	}
}

// MatchRegistry is the authoritative in-memory store of matches and camera
// slots. All methods are safe for concurrent use; each call is atomic.
type MatchRegistry struct {
	matches map[string]*match
	owners  map[string]map[string]int // connectionID -> match code -> camera number
	codes   *CodeGenerator
	now     func() time.Time
	seq     uint64
	mutex   sync.RWMutex
}

func NewMatchRegistry(codes *CodeGenerator) *MatchRegistry {
	return &MatchRegistry{
		matches: make(map[string]*match),
		owners:  make(map[string]map[string]int),
		codes:   codes,
		now:     time.Now,
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *MatchRegistry) CreateMatch(params domain.CreateMatchParams) (domain.MatchSnapshot, error) {
	title := strings.TrimSpace(params.Title)
	teamA := strings.TrimSpace(params.TeamA)
	teamB := strings.TrimSpace(params.TeamB)
	if title == "" || teamA == "" || teamB == "" {
		return domain.MatchSnapshot{}, fmt.Errorf("%w: title, teamA, and teamB are required", domain.ErrValidation)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	code, err := r.codes.Generate(func(code string) bool {
		_, exists := r.matches[code]
		return exists
	})
	if err != nil {
		return domain.MatchSnapshot{}, err
	}

	r.seq++
	m := &match{
		code:      code,
		title:     title,
		teamA:     teamA,
		teamB:     teamB,
		sport:     strings.TrimSpace(params.Sport),
		venue:     strings.TrimSpace(params.Venue),
		createdAt: r.now().UTC(),
		seq:       r.seq,
		cameras:   make(map[int]*cameraSlot),
	}
	r.matches[code] = m

	return project(m), nil
}

func (r *MatchRegistry) GetMatch(code string) (domain.MatchSnapshot, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.matches[normalizeCode(code)]
	if !ok {
		return domain.MatchSnapshot{}, domain.ErrMatchNotFound
	}
	return project(m), nil
}

func (r *MatchRegistry) MatchExists(code string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.matches[normalizeCode(code)]
	return ok
}

// ListMatches returns every match, newest first.
func (r *MatchRegistry) ListMatches() []domain.MatchSnapshot {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ordered := make([]*match, 0, len(r.matches))
	for _, m := range r.matches {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].createdAt.Equal(ordered[j].createdAt) {
			return ordered[i].createdAt.After(ordered[j].createdAt)
		}
		return ordered[i].seq > ordered[j].seq
	})

	snapshots := make([]domain.MatchSnapshot, 0, len(ordered))
	for _, m := range ordered {
		snapshots = append(snapshots, project(m))
	}
	return snapshots
}

// ClaimSlot gives camera slot number of the match to connectionID. Claiming a
// slot the connection already owns only updates the role. A connection holds at
// most one slot per match, so claiming a different number moves it and the
// vacated number is returned (0 when nothing moved).
func (r *MatchRegistry) ClaimSlot(code string, number int, connectionID, role string) (domain.MatchSnapshot, int, error) {
	if number < 1 {
		return domain.MatchSnapshot{}, 0, fmt.Errorf("camera %d: %w", number, domain.ErrInvalidSlot)
	}
	code = normalizeCode(code)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.matches[code]
	if !ok {
		return domain.MatchSnapshot{}, 0, domain.ErrMatchNotFound
	}

	slot, occupied := m.cameras[number]
	if occupied && slot.connectionID != connectionID {
		return domain.MatchSnapshot{}, 0, fmt.Errorf("camera %d: %w", number, domain.ErrSlotTaken)
	}

	vacated := 0
	owned := r.owners[connectionID]
	if prev, ok := owned[code]; ok && prev != number {
		delete(m.cameras, prev)
		vacated = prev
	}

	if occupied {
		slot.role = role
	} else {
		m.cameras[number] = &cameraSlot{
			number:       number,
			connectionID: connectionID,
			role:         role,
		}
	}

	if owned == nil {
		owned = make(map[string]int)
		r.owners[connectionID] = owned
	}
	owned[code] = number

	m.recomputeLive()
	return project(m), vacated, nil
}

// SetStreaming flips the streaming flag of a slot owned by connectionID and
// recomputes whether the match is live.
func (r *MatchRegistry) SetStreaming(code string, number int, connectionID string, streaming bool) (domain.MatchSnapshot, error) {
	code = normalizeCode(code)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	m, ok := r.matches[code]
	if !ok {
		return domain.MatchSnapshot{}, domain.ErrMatchNotFound
	}
	slot, ok := m.cameras[number]
	if !ok {
		return domain.MatchSnapshot{}, fmt.Errorf("camera %d: %w", number, domain.ErrSlotNotFound)
	}
	if slot.connectionID != connectionID {
		return domain.MatchSnapshot{}, fmt.Errorf("camera %d: %w", number, domain.ErrNotOwner)
	}

	slot.isStreaming = streaming
	m.recomputeLive()
	return project(m), nil
}

// StreamingOwner returns the connection owning slot number, but only while that
// slot is streaming.
func (r *MatchRegistry) StreamingOwner(code string, number int) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	m, ok := r.matches[normalizeCode(code)]
	if !ok {
		return "", false
	}
	slot, ok := m.cameras[number]
	if !ok || !slot.isStreaming {
		return "", false
	}
	return slot.connectionID, true
}

// ReleaseConnection frees every slot owned by connectionID, in any match. The
// released locations come back ordered by match code.
func (r *MatchRegistry) ReleaseConnection(connectionID string) []domain.SlotLocation {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	owned, ok := r.owners[connectionID]
	if !ok {
		return nil
	}
	delete(r.owners, connectionID)

	released := make([]domain.SlotLocation, 0, len(owned))
	for code, number := range owned {
		m, ok := r.matches[code]
		if !ok {
			continue
		}
		if slot, ok := m.cameras[number]; ok && slot.connectionID == connectionID {
			delete(m.cameras, number)
			m.recomputeLive()
			released = append(released, domain.SlotLocation{Code: code, CameraNumber: number})
		}
	}

	sort.Slice(released, func(i, j int) bool {
		return released[i].Code < released[j].Code
	})
	return released
}

func (r *MatchRegistry) Stats() domain.RegistryStats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := domain.RegistryStats{Matches: len(r.matches)}
	for _, m := range r.matches {
		if m.isLive {
			stats.LiveMatches++
		}
		for _, cam := range m.cameras {
			stats.Cameras++
			if cam.isStreaming {
				stats.Streaming++
			}
		}
	}
	return stats
}
