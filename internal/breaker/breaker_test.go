package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_ThresholdOpensAndCoolsOff(t *testing.T) {
	b := New(3, 60*time.Second, nil)
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(2 * time.Second)
	assert.True(t, b.Allow(), "half-open should permit exactly one probe")
	assert.False(t, b.Allow(), "a second concurrent probe must be denied")

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_Disabled(t *testing.T) {
	b := New(0, time.Minute, nil)
	assert.Equal(t, StateDisabled, b.State())
	for i := 0; i < 100; i++ {
		assert.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateDisabled, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(1, 10*time.Second, nil)
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }

	b.Allow()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_HookCalledOnTransition(t *testing.T) {
	var transitions [][2]State
	b := New(1, time.Second, func(from, to State) {
		transitions = append(transitions, [2]State{from, to})
	})
	b.Allow()
	b.RecordFailure()
	require.Len(t, transitions, 1)
	assert.Equal(t, StateClosed, transitions[0][0])
	assert.Equal(t, StateOpen, transitions[0][1])
}

func TestExecute_RecordsSuccessAndFailure(t *testing.T) {
	b := New(1, time.Second, nil)
	_, err := Execute(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())

	_, err = Execute(b, func() (int, error) { return 0, assertErr })
	require.Error(t, err)
	assert.Equal(t, StateOpen, b.State())

	_, err = Execute(b, func() (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrOpen)
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
