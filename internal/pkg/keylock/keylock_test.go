package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExclusivePerKey(t *testing.T) {
	l := New(time.Second)

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "work:1")
			if err != nil {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, l.Held())
}

func TestAcquireTimesOutAndReleasesPartialHold(t *testing.T) {
	l := New(30 * time.Millisecond)

	release, err := l.Acquire(context.Background(), "copy:2")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "copy:1", "copy:2")
	assert.ErrorIs(t, err, ErrTimeout)

	// copy:1 was taken first and must be free again
	again, err := l.Acquire(context.Background(), "copy:1")
	require.NoError(t, err)
	again()

	release()
	assert.Equal(t, 0, l.Held())
}

func TestAcquireOppositeOrderDoesNotDeadlock(t *testing.T) {
	l := New(time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "a", "b")
			if err == nil {
				release()
			}
			errs <- err
		}()
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "b", "a")
			if err == nil {
				release()
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestAcquireDuplicateKeysAndContext(t *testing.T) {
	l := New(time.Second)

	release, err := l.Acquire(context.Background(), "member:1", "member:1", "")
	require.NoError(t, err)
	release()
	release()

	hold, err := l.Acquire(context.Background(), "member:1")
	require.NoError(t, err)
	defer hold()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "member:1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "work:12", Key("work", 12))
}
