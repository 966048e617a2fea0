package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/healsmart/internal/docstore"
)

func TestAnonymousSessionRejectsMutations(t *testing.T) {
	sessions := NewSessions(newTestService(docstore.NewMemoryStore(testLogger())))
	sess := sessions.For("")
	ctx := context.Background()

	_, err := sess.Add(ctx, paracetamol)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = sess.Remove(ctx, "med-1")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = sess.Checkout(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = sess.Cart(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestSessionAddRemovePersists(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(docstore.NewMemoryStore(testLogger()))
	sessions := NewSessions(svc)
	sess := sessions.For("user-1")
	assert.Same(t, sess, sessions.For("user-1"))

	_, err := sess.Add(ctx, paracetamol)
	require.NoError(t, err)
	c, err := sess.Add(ctx, vitaminC)
	require.NoError(t, err)
	assert.Equal(t, 2, Count(c))

	c, err = sess.Remove(ctx, "med-2")
	require.NoError(t, err)
	assert.Equal(t, 1, Count(c))

	persisted, err := svc.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, c, persisted)
}

func TestSessionLoadsExistingCart(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(docstore.NewMemoryStore(testLogger()))
	require.NoError(t, svc.Persist(ctx, AddItem(Cart{}, vitaminC), "user-1"))

	c, err := NewSessions(svc).For("user-1").Add(ctx, vitaminC)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)
}

func TestSessionKeepsStoredCartWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	sess := NewSessions(newTestService(store)).For("user-1")

	_, err := sess.Add(ctx, paracetamol)
	require.NoError(t, err)
	store.fail("carts")

	_, err = sess.Add(ctx, vitaminC)
	var se *docstore.StoreError
	require.ErrorAs(t, err, &se)

	c, err := sess.Cart(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, Count(c))
}

func TestSessionRejectsInvalidProduct(t *testing.T) {
	sess := NewSessions(newTestService(docstore.NewMemoryStore(testLogger()))).For("user-1")
	_, err := sess.Add(context.Background(), Product{Price: 1})
	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestSessionCheckout(t *testing.T) {
	ctx := context.Background()
	sess := NewSessions(newTestService(docstore.NewMemoryStore(testLogger()))).For("user-1")

	_, err := sess.Checkout(ctx)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = sess.Add(ctx, paracetamol)
	require.NoError(t, err)
	order, err := sess.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-1", order.ID)

	c, err := sess.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestSessionPartialCheckoutEmptiesCart(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	sess := NewSessions(newTestService(store)).For("user-1")
	_, err := sess.Add(ctx, paracetamol)
	require.NoError(t, err)
	store.fail("carts")

	_, err = sess.Checkout(ctx)
	var partial *PartialCheckoutError
	require.ErrorAs(t, err, &partial)

	c, err := sess.Cart(ctx)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = sess.Checkout(ctx)
	assert.ErrorIs(t, err, ErrEmptyCart, "the order is not placed twice")

	store.recover()
	c, err = sess.Add(ctx, vitaminC)
	require.NoError(t, err)
	persisted, err := sess.service.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, c, persisted)
	require.Len(t, persisted.Items, 1, "the ordered item is not carried over")
	assert.Equal(t, "med-2", persisted.Items[0].ID)
}

func TestSessionSerializesConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(docstore.NewMemoryStore(testLogger()))
	sessions := NewSessions(svc)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sessions.For("user-1").Add(ctx, paracetamol)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	persisted, err := svc.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 20, Count(persisted))
}

func TestSessionsForget(t *testing.T) {
	sessions := NewSessions(newTestService(docstore.NewMemoryStore(testLogger())))
	first := sessions.For("user-1")
	sessions.Forget("user-1")
	assert.NotSame(t, first, sessions.For("user-1"))
}

func TestSessionSeesWritesFromOtherReplicas(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(docstore.NewMemoryStore(testLogger()))
	replicaA := NewSessions(svc).For("user-1")
	replicaB := NewSessions(svc).For("user-1")

	_, err := replicaA.Add(ctx, paracetamol)
	require.NoError(t, err)
	_, err = replicaB.Add(ctx, vitaminC)
	require.NoError(t, err)
	c, err := replicaA.Add(ctx, paracetamol)
	require.NoError(t, err)

	assert.Equal(t, 3, Count(c))
	persisted, err := svc.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, c, persisted)

	_, err = replicaB.Remove(ctx, "med-1")
	require.NoError(t, err)
	c, err = replicaA.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "med-2", c.Items[0].ID)
}

func TestSessionsEvictIdle(t *testing.T) {
	sessions := NewSessionsWithIdle(newTestService(docstore.NewMemoryStore(testLogger())), time.Minute)
	now := time.UnixMilli(1_700_000_000_000)
	sessions.now = func() time.Time { return now }

	first := sessions.For("user-1")
	sessions.For("user-2")
	assert.Equal(t, 2, sessions.Len())

	now = now.Add(30 * time.Second)
	sessions.For("user-2")
	now = now.Add(45 * time.Second)
	sessions.For("user-3")

	assert.Equal(t, 2, sessions.Len(), "user-1 was idle past the timeout")
	assert.NotSame(t, first, sessions.For("user-1"))
}

func TestSessionsKeepSessionWithPendingClear(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	sessions := NewSessionsWithIdle(newTestService(store), time.Minute)
	now := time.UnixMilli(1_700_000_000_000)
	sessions.now = func() time.Time { return now }

	sess := sessions.For("user-1")
	_, err := sess.Add(ctx, paracetamol)
	require.NoError(t, err)
	store.fail("carts")
	_, err = sess.Checkout(ctx)
	var partial *PartialCheckoutError
	require.ErrorAs(t, err, &partial)

	now = now.Add(2 * time.Minute)
	sessions.For("user-2")
	assert.Same(t, sess, sessions.For("user-1"))
}
