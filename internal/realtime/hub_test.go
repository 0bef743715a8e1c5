package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesEverySubscriber(t *testing.T) {
	hub := NewHub(4)
	a := hub.Subscribe()
	b := hub.Subscribe()
	require.Equal(t, 2, hub.Len())

	sig := Signal{Table: "visits", VisitID: "v1", Op: OpUpdate, At: time.Now()}
	hub.Broadcast(sig)

	assert.Equal(t, sig, <-a.C)
	assert.Equal(t, sig, <-b.C)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()

	hub.Broadcast(Signal{VisitID: "v1"})
	hub.Broadcast(Signal{VisitID: "v2"})

	assert.Equal(t, "v1", (<-sub.C).VisitID)
	assert.Equal(t, int64(1), hub.Dropped())
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(1)
	sub := hub.Subscribe()

	hub.Unsubscribe(sub)
	hub.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)
	assert.Zero(t, hub.Len())
	hub.Broadcast(Signal{VisitID: "v1"})
}

func TestHubCloseDisconnectsAll(t *testing.T) {
	hub := NewHub(1)
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Close()
	hub.Unsubscribe(a)

	_, openA := <-a.C
	_, openB := <-b.C
	assert.False(t, openA)
	assert.False(t, openB)
	assert.Zero(t, hub.Len())
}
