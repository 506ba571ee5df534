package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(utterance string, tsIn time.Time) TurnRecord {
	return TurnRecord{
		Utterance: utterance,
		Answer:    "answer to " + utterance,
		TsIn:      tsIn,
		TsOut:     tsIn.Add(200 * time.Millisecond),
	}
}

func TestLoadUnknownUser(t *testing.T) {
	store := NewStore(0)

	session := store.Load("u1")
	assert.Equal(t, "u1", session.UserID)
	assert.Zero(t, session.Turns())

	_, ok := session.Last()
	assert.False(t, ok)
	assert.Zero(t, store.Users(), "loading must not materialise a session")
}

func TestAppendAssignsID(t *testing.T) {
	store := NewStore(0)

	saved := store.Append("u1", record("first", time.Now()))
	assert.NotEmpty(t, saved.ID)

	withID := TurnRecord{ID: "turn-7", Utterance: "second", TsIn: time.Now()}
	saved = store.Append("u1", withID)
	assert.Equal(t, "turn-7", saved.ID)
}

func TestAppendThenLoad(t *testing.T) {
	store := NewStore(0)
	now := time.Now()

	store.Append("u1", record("plan a day in Alfama", now))
	store.Append("u1", record("what about the weather", now.Add(time.Second)))

	session := store.Load("u1")
	require.Equal(t, 2, session.Turns())
	assert.Equal(t, "plan a day in Alfama", session.History[0].Utterance)

	last, ok := session.Last()
	require.True(t, ok)
	assert.Equal(t, "what about the weather", last.Utterance)
	assert.Equal(t, 1, store.Users())
}

func TestHistoryTrimsToTail(t *testing.T) {
	store := NewStore(10)
	base := time.Now()

	for i := 0; i < 13; i++ {
		store.Append("u1", record(fmt.Sprintf("turn %d", i), base.Add(time.Duration(i)*time.Second)))
	}

	session := store.Load("u1")
	require.Equal(t, 10, session.Turns())
	assert.Equal(t, "turn 3", session.History[0].Utterance, "oldest turns fall off the front")
	assert.Equal(t, "turn 12", session.History[9].Utterance)
}

func TestAppendKeepsTsInMonotonic(t *testing.T) {
	store := NewStore(0)
	base := time.Now()

	store.Append("u1", record("later", base.Add(time.Minute)))
	store.Append("u1", record("earlier", base))

	session := store.Load("u1")
	require.Equal(t, 2, session.Turns())
	assert.False(t, session.History[1].TsIn.Before(session.History[0].TsIn))
}

func TestRepeatTurnOrdering(t *testing.T) {
	store := NewStore(0)

	first := store.Append("u1", record("same question", time.Now()))
	second := store.Append("u1", record("same question", first.TsOut.Add(time.Millisecond)))

	session := store.Load("u1")
	assert.Equal(t, 2, session.Turns())
	assert.False(t, second.TsIn.Before(first.TsOut))
}

func TestLoadReturnsCopy(t *testing.T) {
	store := NewStore(0)
	store.Append("u1", record("original", time.Now()))

	session := store.Load("u1")
	session.History[0].Answer = "tampered"

	reloaded := store.Load("u1")
	assert.Equal(t, "answer to original", reloaded.History[0].Answer)
}

func TestUsersAreIndependent(t *testing.T) {
	store := NewStore(0)
	store.Append("u1", record("from u1", time.Now()))
	store.Append("u2", record("from u2", time.Now()))

	assert.Equal(t, 1, store.Load("u1").Turns())
	assert.Equal(t, 1, store.Load("u2").Turns())
	assert.Equal(t, 2, store.Users())
}

func TestConcurrentAppends(t *testing.T) {
	store := NewStore(100)
	base := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Append("u1", record(fmt.Sprintf("turn %d", i), base.Add(time.Duration(i)*time.Millisecond)))
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Load("u1")
		}()
	}
	wg.Wait()

	session := store.Load("u1")
	require.Equal(t, 50, session.Turns())
	for i := 1; i < session.Turns(); i++ {
		assert.False(t, session.History[i].TsIn.Before(session.History[i-1].TsIn),
			"history must stay ordered under concurrent appends")
	}
}

func TestConcurrentDistinctUsers(t *testing.T) {
	store := NewStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i)
			for j := 0; j < 5; j++ {
				store.Append(user, record(fmt.Sprintf("turn %d", j), time.Now()))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, store.Users())
	for i := 0; i < 20; i++ {
		assert.Equal(t, 5, store.Load(fmt.Sprintf("u%d", i)).Turns())
	}
}
