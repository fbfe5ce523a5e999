package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []int
}

func (r *recorder) apply(v int) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder) get() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.values...)
}

func TestPushCoalesces(t *testing.T) {
	rec := &recorder{}
	s := New(50*time.Millisecond, rec.apply)

	for _, v := range []int{10, 20, 30, 40, 55} {
		s.Push(v)
	}

	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []int{55}, rec.get())
}

func TestPushClamps(t *testing.T) {
	rec := &recorder{}
	s := New(time.Hour, rec.apply)

	s.Push(150)
	require.True(t, s.FlushNow())
	s.Push(-5)
	require.True(t, s.FlushNow())

	assert.Equal(t, []int{100, 0}, rec.get())
}

func TestFlushNow(t *testing.T) {
	rec := &recorder{}
	s := New(time.Hour, rec.apply)

	assert.False(t, s.FlushNow(), "nothing pending")

	s.Push(42)
	assert.True(t, s.FlushNow())
	assert.False(t, s.FlushNow(), "pending cleared after flush")
	assert.Equal(t, []int{42}, rec.get())
}

func TestStopDropsPending(t *testing.T) {
	rec := &recorder{}
	s := New(20*time.Millisecond, rec.apply)

	s.Push(70)
	s.Stop()
	time.Sleep(60 * time.Millisecond)

	assert.Empty(t, rec.get())
}
