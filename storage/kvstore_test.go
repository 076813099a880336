package storage

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func Test_mailbox_put_get(t *testing.T) {
	m := NewMailbox()

	require.NoError(t, m.Put("3/1", big.NewInt(7)))
	v, ok := m.Get("3/1")
	require.True(t, ok)
	require.Equal(t, int64(7), v.(*big.Int).Int64())

	// same value twice is fine, a different one is not
	require.NoError(t, m.Put("3/1", big.NewInt(7)))
	require.Error(t, m.Put("3/1", big.NewInt(8)))

	require.Equal(t, 1, m.Len())
	require.NoError(t, m.Del("3/1"))
	require.Equal(t, 0, m.Len())
}

func Test_mailbox_wait_delivered_later(t *testing.T) {
	m := NewMailbox()

	go func() {
		time.Sleep(20 * time.Millisecond)
		m.Put("k", "v")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := m.Wait(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)

	// already present
	v, err = m.Wait(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func Test_mailbox_wait_timeout(t *testing.T) {
	m := NewMailbox()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Wait(ctx, "missing")
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func Test_mailbox_close_wakes_waiters(t *testing.T) {
	m := NewMailbox()
	boom := xerrors.New("boom")

	done := make(chan error, 1)
	go func() {
		_, err := m.Wait(context.Background(), "k")
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close(boom)
	m.Close(xerrors.New("second"))

	select {
	case err := <-done:
		require.Equal(t, boom, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}

	require.Equal(t, boom, m.Err())
	require.Error(t, m.Put("k", 1))
	_, err := m.Wait(context.Background(), "other")
	require.Equal(t, boom, err)
}

func Test_mailbox_for_sorted(t *testing.T) {
	m := NewMailbox()
	m.Put("b", 2)
	m.Put("a", 1)

	keys := []string{}
	err := m.For(func(key string, value interface{}) error {
		keys = append(keys, key)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, keys)
}
