package ctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCtrlAcceptHandoff(t *testing.T) {
	a := NewSlot()
	b := NewSlot()

	var order []string
	done := make(chan struct{})

	go func() {
		<-a // wait to be started
		order = append(order, "a1")
		require.NoError(t, CtrlAccept(b, a))
		order = append(order, "a2")
		close(done)
	}()

	go func() {
		<-b // parked, waiting to be resumed by A's CtrlAccept(b, a)
		order = append(order, "b1")
		require.NoError(t, Wake(a)) // hand control back to A, done
	}()

	a <- struct{}{} // kick off goroutine "a", as the scheduler would
	<-done
	assert.Equal(t, []string{"a1", "b1", "a2"}, order)
}

func TestCtrlAcceptNilPeerIsFatal(t *testing.T) {
	self := NewSlot()
	err := CtrlAccept(nil, self)
	require.Error(t, err)
}

func TestEventSlotDepositTake(t *testing.T) {
	var s EventSlot[int]
	_, ok := s.Take()
	assert.False(t, ok)

	s.Deposit(42)
	assert.True(t, s.Peek())
	v, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, 42, v)
	assert.False(t, s.Peek())
}

func TestRCSlotStoreLoad(t *testing.T) {
	var s RCSlot
	_, ok := s.Load()
	assert.False(t, ok)

	s.Store(nil)
	rc, ok := s.Load()
	assert.True(t, ok)
	assert.NoError(t, rc)
}
