// Package timer реализует однократные отложенные вызовы с отменой и перевзводом.
package timer

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// NonPositivePolicy определяет поведение Schedule при delay <= 0.
type NonPositivePolicy int

const (
	// Disabled: таймер не взводится, возвращается пустой Handle.
	Disabled NonPositivePolicy = iota
	// FireNow: колбэк вызывается асинхронно сразу.
	FireNow
)

// ParsePolicy разбирает значение политики из конфигурации.
func ParsePolicy(raw string) (NonPositivePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "disabled", "disable", "off":
		return Disabled, nil
	case "fire_now", "fire-now", "immediate":
		return FireNow, nil
	default:
		return Disabled, fmt.Errorf("timer: unknown non-positive policy %q", raw)
	}
}

// String возвращает имя политики.
func (p NonPositivePolicy) String() string {
	switch p {
	case FireNow:
		return "fire_now"
	default:
		return "disabled"
	}
}

// Handle идентифицирует запланированный вызов. Нулевой Handle ничего не отменяет.
type Handle struct {
	id   uint64
	stop func() bool
}

// ID возвращает идентификатор вызова (0 для пустого Handle).
func (h Handle) ID() uint64 { return h.id }

// Armed сообщает, был ли под Handle взведён таймер.
func (h Handle) Armed() bool { return h.id != 0 }

// Scheduler планирует однократные вызовы.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) Handle
	Cancel(h Handle)
}

// Service: Scheduler поверх time.AfterFunc.
type Service struct {
	policy NonPositivePolicy
	seq    atomic.Uint64
}

// New создаёт сервис таймеров с указанной политикой для delay <= 0.
func New(policy NonPositivePolicy) *Service {
	return &Service{policy: policy}
}

// Policy возвращает политику для неположительных задержек.
func (s *Service) Policy() NonPositivePolicy { return s.policy }

// Schedule взводит однократный таймер. Колбэк выполняется в отдельной горутине.
func (s *Service) Schedule(delay time.Duration, fn func()) Handle {
	if fn == nil {
		return Handle{}
	}
	if delay <= 0 {
		if s.policy != FireNow {
			return Handle{}
		}
		go fn()
		return Handle{id: s.seq.Add(1)}
	}
	t := time.AfterFunc(delay, fn)
	return Handle{id: s.seq.Add(1), stop: t.Stop}
}

// Cancel останавливает таймер. Повторная отмена и отмена сработавшего таймера безопасны.
func (s *Service) Cancel(h Handle) {
	if h.stop == nil {
		return
	}
	h.stop()
}
