package titanircd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextClockIsMonotonic(t *testing.T) {
	p := &Persistence{}

	prev := p.nextClock()
	for i := 0; i < 1000; i++ {
		cur := p.nextClock()
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestNextClockAdvancesPastFutureStampOnRewind(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixNano()
	p := &Persistence{lastClockNanos: future}

	cur := p.nextClock()
	assert.Equal(t, future+1, cur)
}
