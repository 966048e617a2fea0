package cart

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultSessionIdle is how long an unused session stays cached.
const DefaultSessionIdle = 30 * time.Minute

// Session serializes one user's cart operations on this process. Every
// operation reads the cart from the store first, so writes made elsewhere
// (another replica, the admin CLI) are never overwritten with a stale copy.
// A mutation persists before it is reported; a failed write leaves the
// stored cart untouched.
type Session struct {
	userID  string
	service *Service

	mu sync.Mutex
	// pendingClear is set after a partial checkout: the order exists but the
	// stored cart could not be emptied. The cart reads as empty until the next
	// successful write replaces the stored copy.
	pendingClear bool

	// lastUsed is guarded by Sessions.mu.
	lastUsed time.Time
}

// UserID is empty for an anonymous session.
func (s *Session) UserID() string { return s.userID }

// Cart returns the user's current cart.
func (s *Session) Cart(ctx context.Context) (Cart, error) {
	if s.userID == "" {
		return Cart{}, ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Session) Add(ctx context.Context, product Product) (Cart, error) {
	if err := product.Validate(); err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, "add", func(c Cart) Cart { return AddItem(c, product) })
}

func (s *Session) Remove(ctx context.Context, id string) (Cart, error) {
	return s.mutate(ctx, "remove", func(c Cart) Cart { return RemoveItem(c, id) })
}

// Checkout places an order for the stored cart and empties it. On a partial
// checkout the cart reads as empty from then on, so the order is not placed
// twice.
func (s *Session) Checkout(ctx context.Context) (Order, error) {
	if s.userID == "" {
		return Order{}, ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.load(ctx)
	if err != nil {
		return Order{}, err
	}
	order, err := s.service.Checkout(ctx, c, s.userID)
	var partial *PartialCheckoutError
	if errors.As(err, &partial) {
		s.pendingClear = true
	}
	return order, err
}

func (s *Session) mutate(ctx context.Context, op string, apply func(Cart) Cart) (Cart, error) {
	if s.userID == "" {
		s.service.metrics.ObserveCartOp(op, "unauthenticated")
		return Cart{}, ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.load(ctx)
	if err != nil {
		s.service.metrics.ObserveCartOp(op, "error")
		return Cart{}, err
	}
	next := apply(current)
	if err := s.service.Persist(ctx, next, s.userID); err != nil {
		s.service.metrics.ObserveCartOp(op, "error")
		s.service.logger.Error("cart: persist failed", "error", err, "op", op, "user_id", s.userID)
		return Cart{}, err
	}
	s.pendingClear = false
	s.service.metrics.ObserveCartOp(op, "ok")
	return Cart{Items: append([]LineItem(nil), next.Items...)}, nil
}

// load reads the stored cart. Callers hold s.mu.
func (s *Session) load(ctx context.Context) (Cart, error) {
	if s.pendingClear {
		return Cart{}, nil
	}
	return s.service.Load(ctx, s.userID)
}

// Sessions hands out one Session per user id and drops sessions that have
// been idle for longer than the idle timeout.
type Sessions struct {
	service *Service
	idle    time.Duration
	now     func() time.Time

	mu        sync.Mutex
	sessions  map[string]*Session
	lastSweep time.Time
}

func NewSessions(service *Service) *Sessions {
	return NewSessionsWithIdle(service, DefaultSessionIdle)
}

// NewSessionsWithIdle is NewSessions with an explicit idle timeout. A
// non-positive timeout uses DefaultSessionIdle.
func NewSessionsWithIdle(service *Service, idle time.Duration) *Sessions {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	return &Sessions{
		service:  service,
		idle:     idle,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// For returns the user's session. An empty user id yields an anonymous
// session whose mutations fail with ErrNotAuthenticated.
func (s *Sessions) For(userID string) *Session {
	if userID == "" {
		return &Session{service: s.service}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
		s.lastSweep = now
	}
	sess, ok := s.sessions[userID]
	if !ok {
		sess = &Session{userID: userID, service: s.service}
		s.sessions[userID] = sess
	}
	sess.lastUsed = now
	return sess
}

// Len reports how many sessions are cached.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Forget drops the cached session.
func (s *Sessions) Forget(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// sweep drops idle sessions. A session that is mid-operation or still has a
// pending clear is kept. Callers hold s.mu.
func (s *Sessions) sweep(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) < s.idle {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		owes := sess.pendingClear
		sess.mu.Unlock()
		if !owes {
			delete(s.sessions, id)
		}
	}
}
