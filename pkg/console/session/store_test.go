package session

import (
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentdeck-dev/agentdeck/pkg/console/events"
)

func newTestStore() *Store {
	return NewStore(logr.Discard())
}

func TestStore_GetOrCreate(t *testing.T) {
	st := newTestStore()

	s := st.GetOrCreate("s1", testNow)
	assert.Equal(t, "s1", s.ID)
	assert.Equal(t, testNow, s.CreatedAt)

	// First session becomes active
	assert.Equal(t, "s1", st.ActiveID())

	// Second call returns the existing session
	st.Put(StartTask(s, "hello", testNow))
	again := st.GetOrCreate("s1", testNow.Add(time.Minute))
	assert.Len(t, again.Transcript, 1)
}

func TestStore_List_MostRecentFirst(t *testing.T) {
	st := newTestStore()

	a := st.GetOrCreate("a", testNow)
	b := st.GetOrCreate("b", testNow)
	_ = st.GetOrCreate("c", testNow)

	a.UpdatedAt = testNow.Add(2 * time.Minute)
	st.Put(a)
	b.UpdatedAt = testNow.Add(5 * time.Minute)
	st.Put(b)

	list := st.List()
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestStore_Delete_PromotesNextMostRecent(t *testing.T) {
	st := newTestStore()

	a := st.GetOrCreate("a", testNow)
	b := st.GetOrCreate("b", testNow)
	c := st.GetOrCreate("c", testNow)
	st.SetActive("a")

	b.UpdatedAt = testNow.Add(time.Minute)
	st.Put(b)
	c.UpdatedAt = testNow.Add(2 * time.Minute)
	st.Put(c)
	a.UpdatedAt = testNow.Add(3 * time.Minute)
	st.Put(a)

	st.Delete("a")

	_, ok := st.Get("a")
	assert.False(t, ok)
	assert.Equal(t, "c", st.ActiveID())
}

func TestStore_Delete_LastSessionLeavesNoneActive(t *testing.T) {
	st := newTestStore()
	st.GetOrCreate("a", testNow)

	st.Delete("a")
	assert.Equal(t, "", st.ActiveID())
	assert.Empty(t, st.List())
}

func TestStore_Delete_InactiveKeepsActive(t *testing.T) {
	st := newTestStore()
	st.GetOrCreate("a", testNow)
	st.GetOrCreate("b", testNow)
	st.SetActive("a")

	st.Delete("b")
	assert.Equal(t, "a", st.ActiveID())
}

func TestStore_Rename_PreservesTranscriptAndPosition(t *testing.T) {
	st := newTestStore()

	st.GetOrCreate("first", testNow)
	placeholder := st.GetOrCreate("local-123", testNow)
	st.GetOrCreate("third", testNow)

	st.Put(StartTask(placeholder, "renamed task", testNow))
	st.SetActive("local-123")

	require.True(t, st.Rename("local-123", "srv-9"))

	_, ok := st.Get("local-123")
	assert.False(t, ok)
	renamed, ok := st.Get("srv-9")
	require.True(t, ok)
	require.Len(t, renamed.Transcript, 1)
	assert.Equal(t, "renamed task", renamed.Transcript[0].Content)
	assert.Equal(t, "srv-9", st.ActiveID())

	// Order position preserved: middle of creation order
	ids := make([]string, 0, 3)
	for _, s := range st.List() {
		ids = append(ids, s.ID)
	}
	assert.Contains(t, ids, "srv-9")
}

func TestStore_Rename_TakenTarget(t *testing.T) {
	st := newTestStore()
	st.GetOrCreate("a", testNow)
	st.GetOrCreate("b", testNow)

	assert.False(t, st.Rename("a", "b"))
}

func TestStore_Subscribe_CoalescesNotifications(t *testing.T) {
	st := newTestStore()
	ch := st.Subscribe()

	for i := 0; i < 5; i++ {
		st.GetOrCreate("s", testNow)
		st.Put(New("s2", testNow))
	}

	// At least one signal is pending; draining empties it
	select {
	case <-ch:
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-ch:
		t.Fatal("expected notifications to coalesce into one pending signal")
	default:
	}
}

func TestStore_Threads(t *testing.T) {
	st := newTestStore()
	st.SetThreads([]events.ThreadInfo{{ID: "t1", Title: "one"}, {ID: "t2", Title: "two"}})

	st.RemoveThread("t1")
	threads := st.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, "t2", threads[0].ID)
}

func TestStore_CommitsAreCopies(t *testing.T) {
	// Reducing a snapshot and committing it must not disturb a snapshot
	// another reader took earlier.
	st := newTestStore()
	s := st.GetOrCreate("s1", testNow)
	st.Put(StartTask(s, "original", testNow))

	before, ok := st.Get("s1")
	require.True(t, ok)

	next := Reduce(before, env(events.EventNewText, events.TokenPayload{Delta: "x"}), testNow)
	next = Reduce(next, env(events.EventTaskFinished, nil), testNow)
	st.Put(next)

	assert.Len(t, before.Transcript, 1)
	after, _ := st.Get("s1")
	assert.Len(t, after.Transcript, 3)
}
