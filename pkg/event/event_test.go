package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SMURFSorg/InterferingCheckpoints/pkg/simtime"
	"github.com/SMURFSorg/InterferingCheckpoints/pkg/workload"
)

func TestPopEarliestOrdersByDate(t *testing.T) {
	q := NewQueue()
	q.Insert(&Event{Kind: IoEnd, Date: 10})
	q.Insert(&Event{Kind: AppStart, Date: 5})
	q.Insert(&Event{Kind: CkptStart, Date: 7})

	e1, ok := q.PopEarliest()
	require.True(t, ok)
	assert.Equal(t, simtime.Time(5), e1.Date)

	e2, _ := q.PopEarliest()
	assert.Equal(t, simtime.Time(7), e2.Date)

	e3, _ := q.PopEarliest()
	assert.Equal(t, simtime.Time(10), e3.Date)

	_, ok = q.PopEarliest()
	assert.False(t, ok)
}

func TestPopEarliestBreaksTiesByInsertionOrder(t *testing.T) {
	q := NewQueue()
	first := q.Insert(&Event{Kind: IoEnd, Date: 10})
	second := q.Insert(&Event{Kind: CkptStart, Date: 10})

	got1, _ := q.PopEarliest()
	got2, _ := q.PopEarliest()
	assert.Same(t, first, got1)
	assert.Same(t, second, got2)
}

func TestRemoveDropsAPendingEvent(t *testing.T) {
	q := NewQueue()
	e := q.Insert(&Event{Kind: CkptEnd, Date: 20})
	q.Insert(&Event{Kind: IoEnd, Date: 30})
	q.Remove(e)
	assert.Equal(t, 1, q.Len())
	remaining, ok := q.PopEarliest()
	require.True(t, ok)
	assert.Equal(t, IoEnd, remaining.Kind)
}

func TestRemoveAllForAppOnlyTouchesThatApp(t *testing.T) {
	appA := &workload.App{AppIndex: 1}
	appB := &workload.App{AppIndex: 2}
	q := NewQueue()
	q.Insert(&Event{Kind: CkptStart, Date: 1, App: appA})
	q.Insert(&Event{Kind: IoStart, Date: 2, App: appB})
	q.Insert(&Event{Kind: IoEnd, Date: 3, App: appA})

	removed := q.RemoveAllForApp(appA)
	assert.Len(t, removed, 2)
	assert.Equal(t, 1, q.Len())
	left, _ := q.PopEarliest()
	assert.Same(t, appB, left.App)
}
