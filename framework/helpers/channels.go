package helpers

import (
	"time"

	"github.com/imagealter/worker-test-harness/framework/opt"
)

// TryReceive is a shortcut for using select to do a receive with timeout. It returns a
// Maybe that has a value if one was available, or no value if it timed out. A closed
// channel yields the zero value; use TryReceiveOrClosed if that must be distinguished.
func TryReceive[V any](ch <-chan V, timeout time.Duration) opt.Maybe[V] {
	value, _ := TryReceiveOrClosed(ch, timeout)
	return value
}

// TryReceiveOrClosed waits up to timeout for a value. It returns (Some(value), false) if one
// arrived, (None, true) if the channel was closed, or (None, false) if it timed out.
func TryReceiveOrClosed[V any](ch <-chan V, timeout time.Duration) (opt.Maybe[V], bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case value, ok := <-ch:
		if !ok {
			return opt.None[V](), true
		}
		return opt.Some(value), false
	case <-deadline.C:
		return opt.None[V](), false
	}
}

// RequireValue tries to receive a value and returns it if successful, or causes the test
// to fail and terminate immediately if it timed out.
func RequireValue[V any](t TestContext, ch <-chan V, timeout time.Duration) V {
	var empty V
	return RequireValueWithMessage(t, ch, timeout, "timed out waiting for value of type %T", empty)
}

// RequireValueWithMessage is the same as RequireValue, but allows customization of the failure message.
func RequireValueWithMessage[V any](
	t TestContext,
	ch <-chan V,
	timeout time.Duration,
	msgFormat string,
	msgArgs ...interface{},
) V {
	maybeValue := TryReceive(ch, timeout)
	if !maybeValue.IsDefined() {
		t.Errorf(msgFormat, msgArgs...)
		t.FailNow()
	}
	return maybeValue.Value()
}
