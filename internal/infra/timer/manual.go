package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual: детерминированный Scheduler с ручным продвижением времени.
// Используется в тестах вместо реальных таймеров.
type Manual struct {
	mu      sync.Mutex
	policy  NonPositivePolicy
	now     time.Duration
	seq     uint64
	pending map[uint64]manualEntry
	all     map[uint64]func()
}

type manualEntry struct {
	id uint64
	at time.Duration
	fn func()
}

// NewManual создаёт ручной планировщик.
func NewManual(policy NonPositivePolicy) *Manual {
	return &Manual{
		policy:  policy,
		pending: make(map[uint64]manualEntry),
		all:     make(map[uint64]func()),
	}
}

// Schedule регистрирует вызов через delay от текущего виртуального времени.
func (m *Manual) Schedule(delay time.Duration, fn func()) Handle {
	if fn == nil {
		return Handle{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if delay <= 0 {
		if m.policy != FireNow {
			return Handle{}
		}
		delay = 0
	}
	m.seq++
	id := m.seq
	m.pending[id] = manualEntry{id: id, at: m.now + delay, fn: fn}
	m.all[id] = fn
	return Handle{id: id, stop: func() bool { return m.remove(id) }}
}

// Cancel снимает вызов, если он ещё не выполнен.
func (m *Manual) Cancel(h Handle) {
	if h.stop == nil {
		return
	}
	h.stop()
}

func (m *Manual) remove(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[id]; !ok {
		return false
	}
	delete(m.pending, id)
	return true
}

// Advance сдвигает виртуальное время и синхронно выполняет наступившие вызовы
// в порядке их сроков. Колбэки вызываются без удержания внутренней блокировки.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now += d
	var due []manualEntry
	for id, e := range m.pending {
		if e.at <= m.now {
			due = append(due, e)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].at == due[j].at {
			return due[i].id < due[j].id
		}
		return due[i].at < due[j].at
	})
	for _, e := range due {
		e.fn()
	}
	return len(due)
}

// Pending возвращает число взведённых вызовов.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Fire выполняет колбэк по Handle независимо от того, был ли он отменён,
// имитируя срабатывание, которое уже было в полёте в момент отмены.
func (m *Manual) Fire(h Handle) bool {
	m.mu.Lock()
	fn, ok := m.all[h.id]
	delete(m.pending, h.id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	fn()
	return true
}

// History возвращает все выданные Handle в порядке планирования.
func (m *Manual) History() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.all))
	for id := uint64(1); id <= m.seq; id++ {
		if _, ok := m.all[id]; !ok {
			continue
		}
		id := id
		out = append(out, Handle{id: id, stop: func() bool { return m.remove(id) }})
	}
	return out
}
