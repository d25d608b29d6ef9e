package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	return []Entry{
		{Service: "api", RemotePort: 8080, Label: "http", Protocol: "TCP"},
		{Service: "api", RemotePort: 9090, Label: "metrics", Protocol: "TCP"},
		{Service: "db", RemotePort: 5432, Label: "pg", Protocol: "TCP"},
	}
}

func TestSnapshotStartsIdleInOrder(t *testing.T) {
	p := NewPublisher(testEntries())

	snap := p.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "api:8080/TCP", snap[0].Entry.Key())
	assert.Equal(t, "api:9090/TCP", snap[1].Entry.Key())
	assert.Equal(t, "db:5432/TCP", snap[2].Entry.Key())
	for _, row := range snap {
		assert.Equal(t, StatusIdle, row.Status)
	}
}

func TestApplyUpdatesRowAndPreservesOrder(t *testing.T) {
	entries := testEntries()
	p := NewPublisher(entries)

	p.Apply(EntryStatus{Entry: entries[1], Status: StatusConnecting, LocalPort: 41833})

	snap := p.Snapshot()
	assert.Equal(t, StatusIdle, snap[0].Status)
	assert.Equal(t, StatusConnecting, snap[1].Status)
	assert.Equal(t, 41833, snap[1].LocalPort)
}

func TestApplyUnknownEntryIsIgnored(t *testing.T) {
	p := NewPublisher(testEntries())

	p.Apply(EntryStatus{Entry: Entry{Service: "ghost", RemotePort: 1}, Status: StatusActive})
	assert.Len(t, p.Snapshot(), 3)
}

func TestLateSubscriberGetsSnapshotBeforeDeltas(t *testing.T) {
	entries := testEntries()
	p := NewPublisher(entries)
	p.Apply(EntryStatus{Entry: entries[0], Status: StatusActive, LocalPort: 40000})
	p.Apply(EntryStatus{Entry: entries[2], Status: StatusFailed, LastError: errors.New("boom")})

	sub := p.Subscribe()
	defer p.Unsubscribe(sub)

	// First three events replay the current table in order.
	first := <-sub.C
	assert.Equal(t, "api:8080/TCP", first.Row.Entry.Key())
	assert.Equal(t, StatusActive, first.Row.Status)

	second := <-sub.C
	assert.Equal(t, StatusIdle, second.Row.Status)

	third := <-sub.C
	assert.Equal(t, StatusFailed, third.Row.Status)
	assert.EqualError(t, third.Row.LastError, "boom")

	// A delta applied after subscribing arrives after the replay.
	p.Apply(EntryStatus{Entry: entries[1], Status: StatusConnecting})
	delta := <-sub.C
	assert.Equal(t, "api:9090/TCP", delta.Row.Entry.Key())
	assert.Equal(t, StatusConnecting, delta.Row.Status)
}

func TestSubscriberSeesEachUpdateOnce(t *testing.T) {
	entries := testEntries()
	p := NewPublisher(entries)
	sub := p.Subscribe()
	defer p.Unsubscribe(sub)

	for range entries {
		<-sub.C
	}

	p.Apply(EntryStatus{Entry: entries[0], Status: StatusConnecting})
	p.Apply(EntryStatus{Entry: entries[0], Status: StatusActive})

	ev := <-sub.C
	assert.Equal(t, StatusConnecting, ev.Row.Status)
	ev = <-sub.C
	assert.Equal(t, StatusActive, ev.Row.Status)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := NewPublisher(testEntries())
	sub := p.Subscribe()

	p.Unsubscribe(sub)

	for {
		if _, open := <-sub.C; !open {
			return
		}
	}
}

func TestSlowSubscriberDoesNotBlockWriter(t *testing.T) {
	entries := testEntries()
	p := NewPublisher(entries)
	sub := p.Subscribe()
	defer p.Unsubscribe(sub)

	// Never read; the writer must keep making progress.
	for i := 0; i < subscriptionBuffer+len(entries)+10; i++ {
		p.Apply(EntryStatus{Entry: entries[0], Status: StatusActive})
	}

	snap := p.Snapshot()
	assert.Equal(t, StatusActive, snap[0].Status)
}
