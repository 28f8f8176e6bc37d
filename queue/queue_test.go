package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/types"
)

func TestSwapMakesNextTheNewNow(t *testing.T) {
	d := NewDual()
	assert.Empty(t, d.Now())

	tr := &TransmissionRecord{
		Sources:      []types.NodeID{1},
		Destinations: []types.NodeID{2},
		DestPowers:   map[types.NodeID]float64{2: 0.5},
		Duration:     3,
		Remaining:    3,
		Frame:        payload.LlcPayload{Seq: 7},
	}
	d.PushNext(tr)
	assert.Empty(t, d.Now()) // not visible until swapped
	assert.Equal(t, 1, d.Len())

	d.Swap()
	assert.Len(t, d.Now(), 1)
	assert.Same(t, tr, d.Now()[0])
	assert.Equal(t, 1, d.Len())

	d.Swap()
	assert.Empty(t, d.Now())
	assert.Equal(t, 0, d.Len())
}

func TestPushNextAccumulatesAcrossTicks(t *testing.T) {
	d := NewDual()
	d.PushNext(&TransmissionRecord{Remaining: 1})
	d.Swap()
	d.PushNext(&TransmissionRecord{Remaining: 2})
	assert.Len(t, d.Now(), 1)
	d.Swap()
	assert.Len(t, d.Now(), 1)
	assert.Equal(t, uint64(2), d.Now()[0].Remaining)
}
