package syncer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordLocks(t *testing.T) {
	var l recordLocks

	unlockA := l.lock("a")
	unlockB := l.lock("b") // other ids are not blocked
	require.Equal(t, 2, l.len())

	var got atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		unlock := l.lock("a")
		got.Store(true)
		unlock()
	}()
	time.Sleep(20 * time.Millisecond)
	require.False(t, got.Load())

	unlockA()
	<-done
	require.True(t, got.Load())

	unlockB()
	require.Zero(t, l.len())
}
