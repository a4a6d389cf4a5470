package memory

import (
	"sort"
	"sync"

	"github.com/dborovsky/grandnode/internal/domain"
)

// timelineRepositoryInMemory хранит события заявок в памяти (для разработки/тестов).
type timelineRepositoryInMemory struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

// NewTimelineRepository создаёт in-memory реализацию TimelineRepository.
func NewTimelineRepository() domain.TimelineRepository {
	return &timelineRepositoryInMemory{events: make(map[string][]domain.TimelineEvent)}
}

// Append добавляет событие в хранилище.
func (r *timelineRepositoryInMemory) Append(event domain.TimelineEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := event.ReturnRequestID
	r.events[key] = append(r.events[key], event)

	sort.Slice(r.events[key], func(i, j int) bool {
		return r.events[key][i].Occurred.Before(r.events[key][j].Occurred)
	})

	return nil
}

// List возвращает события заявки в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(returnRequestID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := r.events[returnRequestID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
