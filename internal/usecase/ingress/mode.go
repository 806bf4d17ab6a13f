package ingress

import (
	"context"
	"fmt"
	"strings"
)

// Mode: входящая стратегия.
type Mode string

const (
	ModePush Mode = "push"
	ModePoll Mode = "poll"
	ModeAMQP Mode = "amqp"
)

// Modes: набор стратегий, выбранных для развёртывания.
type Modes []Mode

// ParseModes разбирает INGRESS_MODE вида "push", "poll,push".
func ParseModes(raw string) (Modes, error) {
	var out Modes
	seen := make(map[Mode]bool)
	for _, part := range strings.Split(raw, ",") {
		m := Mode(strings.ToLower(strings.TrimSpace(part)))
		if m == "" {
			continue
		}
		switch m {
		case ModePush, ModePoll, ModeAMQP:
		default:
			return nil, fmt.Errorf("ingress: unknown mode %q", m)
		}
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ingress: no mode in %q", raw)
	}
	return out, nil
}

// Has сообщает, включена ли стратегия.
func (m Modes) Has(mode Mode) bool {
	for _, v := range m {
		if v == mode {
			return true
		}
	}
	return false
}

// NeedsDedup: при нескольких стратегиях одно событие может прийти дважды.
func (m Modes) NeedsDedup() bool { return len(m) > 1 }

func (m Modes) String() string {
	parts := make([]string, len(m))
	for i, v := range m {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

// Runner: фоновая входящая стратегия (опрос, очередь).
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}
