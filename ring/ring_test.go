package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndRead(t *testing.T) {
	r := New(4, 3)
	bins := []complex128{1, 2, 3}
	r.Publish(0, bins)

	latest, have := r.Latest()
	require.True(t, have)
	assert.Equal(t, uint64(0), latest)

	dst := make([]complex128, 3)
	ok := r.Read(0, dst)
	require.True(t, ok)
	assert.Equal(t, bins, dst)
}

func TestReadFailsOnceSlotOverwritten(t *testing.T) {
	r := New(2, 1) // depth 2: block 0 and block 2 share slot 0
	r.Publish(0, []complex128{1})
	r.Publish(2, []complex128{3})

	dst := make([]complex128, 1)
	ok := r.Read(0, dst)
	assert.False(t, ok, "slot 0 was overwritten by block 2, must report a miss rather than a torn read")

	ok = r.Read(2, dst)
	require.True(t, ok)
	assert.Equal(t, complex(3, 0), dst[0])
}

func TestWaitForUnblocksOnPublish(t *testing.T) {
	r := New(4, 1)
	done := make(chan uint64, 1)
	go func() {
		num, closed := r.WaitFor(1)
		assert.False(t, closed)
		done <- num
	}()

	time.Sleep(10 * time.Millisecond)
	r.Publish(1, []complex128{5})

	select {
	case num := <-done:
		assert.Equal(t, uint64(1), num)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitFor never returned after Publish")
	}
}

func TestCloseWakesWaiters(t *testing.T) {
	r := New(4, 1)
	done := make(chan bool, 1)
	go func() {
		_, closed := r.WaitFor(100)
		done <- closed
	}()

	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case closed := <-done:
		assert.True(t, closed)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitFor never returned after Close")
	}
}
