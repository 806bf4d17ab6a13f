package main

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"feedback-relay/internal/domain"
	"feedback-relay/internal/infra/timer"
	"feedback-relay/internal/usecase/fanout"
	"feedback-relay/internal/usecase/feedback"
)

func TestDrainSilencesPendingExpiry(t *testing.T) {
	hub := fanout.NewHub(zerolog.Nop())
	timers := timer.NewManual(timer.Disabled)
	store := feedback.NewStore(timers, time.Second, hub)

	var mu sync.Mutex
	var kinds []domain.EventKind
	require.NoError(t, hub.SubscribeFunc("broker", 4, func(ev domain.FeedbackEvent) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}))

	store.Set("A", "")
	drain(store, hub)
	timers.Advance(2 * time.Second)

	require.Zero(t, hub.Len())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []domain.EventKind{domain.EventShow}, kinds)
}
