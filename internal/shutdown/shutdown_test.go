package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitOrFail(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestSignal_CloneAfterTriggerObservesImmediately(t *testing.T) {
	t.Parallel()

	trigger, sig := New()
	require.True(t, trigger.Fire())

	late := sig.Clone()
	assert.True(t, late.IsTriggered())

	done := make(chan struct{})
	go func() {
		late.Wait()
		close(done)
	}()
	waitOrFail(t, done, "late clone Wait")
}

func TestSignal_WaitSuspendsUntilFire(t *testing.T) {
	t.Parallel()

	trigger, sig := New()
	clones := []Signal{sig.Clone(), sig.Clone(), trigger.Signal()}

	released := make(chan struct{}, len(clones))
	for _, c := range clones {
		go func(c Signal) {
			c.Wait()
			released <- struct{}{}
		}(c)
	}

	select {
	case <-released:
		t.Fatal("Wait returned before the trigger fired")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, sig.IsTriggered())

	trigger.Fire()
	for range clones {
		select {
		case <-released:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for waiters to be released")
		}
	}
}

func TestTrigger_FireIsMonotonic(t *testing.T) {
	t.Parallel()

	trigger, sig := New()
	assert.True(t, trigger.Fire())
	assert.False(t, trigger.Fire())
	assert.True(t, sig.IsTriggered())
}

func TestSignal_ZeroValueNeverFires(t *testing.T) {
	t.Parallel()

	var sig Signal
	assert.False(t, sig.IsTriggered())
	assert.Nil(t, sig.Done())

	ctx, cancel := sig.Context(context.Background())
	defer cancel()
	assert.NoError(t, ctx.Err())
}

func TestSignal_ContextCancelledOnFire(t *testing.T) {
	t.Parallel()

	trigger, sig := New()
	ctx, cancel := sig.Context(context.Background())
	defer cancel()

	trigger.Fire()
	waitOrFail(t, ctx.Done(), "context cancellation")
}

func TestDerive_FiresWithParent(t *testing.T) {
	t.Parallel()

	parent, parentSig := New()
	child, childSig := Derive(parentSig)
	defer child.Fire()

	parent.Fire()
	waitOrFail(t, childSig.Done(), "derived signal")
}

func TestDerive_FiresIndependentlyOfParent(t *testing.T) {
	t.Parallel()

	_, parentSig := New()
	child, childSig := Derive(parentSig)

	child.Fire()
	assert.True(t, childSig.IsTriggered())
	assert.False(t, parentSig.IsTriggered())
}
