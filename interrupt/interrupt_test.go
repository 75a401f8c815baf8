package interrupt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignalIsSetInitiallyFalse(t *testing.T) {
	s := New()
	assert.False(t, s.IsSet())
}

func TestSignalSetIsIdempotent(t *testing.T) {
	s := New()
	s.Set()
	s.Set()
	assert.True(t, s.IsSet())
}

func TestSignalWaitUnblocksAfterSet(t *testing.T) {
	s := New()
	done := make(chan struct{})
	go func() {
		<-s.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before Set")
	case <-time.After(20 * time.Millisecond):
	}

	s.Set()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not unblock after Set")
	}
}

func TestSignalClearAllowsRearming(t *testing.T) {
	s := New()
	s.Set()
	assert.True(t, s.IsSet())
	s.Clear()
	assert.False(t, s.IsSet())
	s.Set()
	assert.True(t, s.IsSet())
}
