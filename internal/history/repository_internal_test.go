package history

import (
	"testing"
	"time"

	"codeberg.org/mutker/lightsync/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestCappedDropsOldest(t *testing.T) {
	r := &repository{logger: logger.Nop(), limit: 4}

	var buf []*Snapshot
	for i := 0; i < 6; i++ {
		buf = append(buf, &Snapshot{Timestamp: time.UnixMilli(int64(i))})
	}

	got := r.capped(buf)
	assert.Len(t, got, 4)
	assert.Equal(t, int64(2), got[0].Timestamp.UnixMilli())
	assert.Equal(t, int64(5), got[3].Timestamp.UnixMilli())
	assert.Equal(t, 2, r.dropped)

	assert.Len(t, r.capped(got[:3]), 3)
	assert.Equal(t, 2, r.dropped)
}
