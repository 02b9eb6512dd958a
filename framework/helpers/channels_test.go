package helpers

import (
	"testing"
	"time"

	"github.com/imagealter/worker-test-harness/framework/opt"

	"github.com/stretchr/testify/assert"
)

func TestTryReceive(t *testing.T) {
	ch := make(chan string, 1)
	assert.Equal(t, opt.None[string](), TryReceive(ch, time.Millisecond))

	ch <- "a"
	assert.Equal(t, opt.Some("a"), TryReceive(ch, time.Millisecond))

	go func() {
		time.Sleep(time.Millisecond * 50)
		ch <- "b"
	}()
	assert.Equal(t, opt.Some("b"), TryReceive(ch, time.Second))
}

func TestTryReceiveOrClosed(t *testing.T) {
	ch := make(chan []byte, 1)

	value, closed := TryReceiveOrClosed(ch, time.Millisecond)
	assert.False(t, value.IsDefined())
	assert.False(t, closed)

	ch <- []byte("chunk")
	value, closed = TryReceiveOrClosed(ch, time.Millisecond)
	assert.Equal(t, []byte("chunk"), value.Value())
	assert.False(t, closed)

	close(ch)
	value, closed = TryReceiveOrClosed(ch, time.Second)
	assert.False(t, value.IsDefined())
	assert.True(t, closed)
}

func TestRequireValue(t *testing.T) {
	tr1 := TestRecorder{PanicOnTerminate: true}
	ch := make(chan string, 1)
	assert.PanicsWithValue(t, &tr1, func() { _ = RequireValue(&tr1, ch, time.Millisecond) })
	if assert.Error(t, tr1.Err()) {
		assert.Contains(t, tr1.Err().Error(), "waiting for value of type string")
	}

	tr2 := TestRecorder{PanicOnTerminate: true}
	ch <- "a"
	assert.Equal(t, "a", RequireValue(&tr2, ch, time.Millisecond))
	assert.NoError(t, tr2.Err())
}
