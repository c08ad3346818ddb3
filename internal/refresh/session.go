package refresh

import (
	"context"
	"sync"
)

// Session owns one DashboardState for callers without their own event loop,
// such as the HTTP server and the one-shot show command. Blocking refreshes
// complete before Resolve returns; background refreshes and enrichment run
// on their own goroutines and are applied through the same identity check.
type Session struct {
	orch *Orchestrator

	mu    sync.Mutex
	state DashboardState

	wg sync.WaitGroup
}

// NewSession creates a Session with an empty dashboard.
func NewSession(orch *Orchestrator) *Session {
	return &Session{orch: orch}
}

// State returns a copy of the current dashboard.
func (s *Session) State() DashboardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Resolve shows place, waiting for any blocking refresh.
func (s *Session) Resolve(ctx context.Context, place Place) (DashboardState, error) {
	s.mu.Lock()
	res, err := s.orch.Resolve(ctx, s.state, place)
	s.state = res.State
	s.mu.Unlock()
	if err != nil {
		return res.State, err
	}

	if p := res.Pending; p != nil {
		if p.Mode == Blocking {
			s.finish(ctx, s.orch.Run(ctx, *p))
		} else {
			bg := context.WithoutCancel(ctx)
			s.goDo(func() { s.finish(bg, s.orch.Run(bg, *p)) })
		}
	}
	return s.State(), nil
}

// Refresh re-fetches the displayed place regardless of its age.
func (s *Session) Refresh(ctx context.Context) (DashboardState, error) {
	place := s.State().Place
	if place.IsZero() {
		return s.State(), nil
	}
	place.Force = true
	return s.Resolve(ctx, place)
}

// Revalidate re-evaluates staleness for the displayed place. It is what the
// auto-refresh timer calls.
func (s *Session) Revalidate(ctx context.Context) (DashboardState, error) {
	place := s.State().Place
	if place.IsZero() {
		return s.State(), nil
	}
	return s.Resolve(ctx, place)
}

// Restore resolves the last-viewed place, if there is one.
func (s *Session) Restore(ctx context.Context) (DashboardState, bool, error) {
	place, ok, err := s.orch.LastViewed(ctx)
	if err != nil || !ok {
		return s.State(), false, err
	}
	state, err := s.Resolve(ctx, place)
	return state, true, err
}

// Wait blocks until background refreshes and enrichment have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

func (s *Session) goDo(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// finish applies res and, when it carried fresh data, starts enrichment.
func (s *Session) finish(ctx context.Context, res Result) {
	if !s.apply(res) || res.Err != nil || res.Refresh.Mode == Enrichment {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.goDo(func() {
		if enriched, ok := s.orch.Enrich(bg, res.Refresh.Slot, res.Entry); ok {
			s.apply(enriched)
		}
	})
}

func (s *Session) apply(res Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, applied := Apply(s.state, res)
	s.state = next
	return applied
}
