package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/edgeo-scada/bacnet"
	"github.com/stretchr/testify/require"
)

func TestAllocateIsPerPeer(t *testing.T) {
	m := NewManager(nil)
	id1, err := m.Allocate("peer-a")
	require.NoError(t, err)
	id2, err := m.Allocate("peer-b")
	require.NoError(t, err)
	require.Equal(t, id1, id2, "invoke ids are peer-scoped, so two peers can independently start at 0")
}

func TestAllocateSkipsActiveAndExhausts(t *testing.T) {
	m := NewManager(nil)
	for i := 0; i < 256; i++ {
		_, err := m.Allocate("peer")
		require.NoError(t, err)
	}
	_, err := m.Allocate("peer")
	require.ErrorIs(t, err, bacnet.ErrInvokeIDSpaceExhausted)
}

func TestReleaseFreesID(t *testing.T) {
	m := NewManager(nil)
	id, err := m.Allocate("peer")
	require.NoError(t, err)
	for i := 1; i < 256; i++ {
		_, err := m.Allocate("peer")
		require.NoError(t, err)
	}
	m.Release("peer", id)
	id2, err := m.Allocate("peer")
	require.NoError(t, err)
	require.Equal(t, id, id2)
}

func TestBeginAndComplete(t *testing.T) {
	m := NewManager(nil)
	tx, err := m.Begin("peer", bacnet.ServiceReadProperty, time.Second, 3, func() error { return nil })
	require.NoError(t, err)
	require.Equal(t, AwaitConfirmation, tx.State)

	m.Complete("peer", tx.InvokeID, Result{APDU: &bacnet.APDU{}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	apdu, err := tx.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, apdu)

	_, ok := m.Lookup("peer", tx.InvokeID)
	require.False(t, ok, "completed transaction should be removed")
}

func TestReapRetriesThenTimesOut(t *testing.T) {
	m := NewManager(nil)
	retries := 0
	tx, err := m.Begin("peer", bacnet.ServiceReadProperty, time.Millisecond, 2, func() error {
		retries++
		return nil
	})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	m.ReapOnce() // retry 1
	time.Sleep(5 * time.Millisecond)
	m.ReapOnce() // retry 2
	time.Sleep(5 * time.Millisecond)
	m.ReapOnce() // exhausted -> timeout

	require.Equal(t, 2, retries)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = tx.Wait(ctx)
	require.ErrorIs(t, err, bacnet.ErrTimeout)
}
