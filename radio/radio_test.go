package radio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdsns/sim/payload"
	"github.com/pdsns/sim/perr"
	"github.com/pdsns/sim/queue"
	"github.com/pdsns/sim/types"
)

type fakeScheduler struct {
	enqueued []*queue.TransmissionRecord
	tick     uint64
}

func (f *fakeScheduler) EnqueueTransmission(tr *queue.TransmissionRecord) {
	f.enqueued = append(f.enqueued, tr)
}
func (f *fakeScheduler) CurrentTick() uint64 { return f.tick }

func okPropagation(src, dst types.NodeID, param interface{}) ([]types.NodeID, map[types.NodeID]float64, []types.NodeID, map[types.NodeID]float64, error) {
	return []types.NodeID{src}, map[types.NodeID]float64{src: 1.0}, []types.NodeID{dst}, map[types.NodeID]float64{dst: 0.5}, nil
}

func TestTurnOnOff(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.1, 1.0, 1, okPropagation, sched)
	require.NoError(t, r.TurnOn())
	assert.Equal(t, Idle, r.State())
	require.NoError(t, r.TurnOff())
	assert.Equal(t, Off, r.State())
}

func TestTurnOnTwiceIsInvalid(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.1, 1.0, 1, okPropagation, sched)
	require.NoError(t, r.TurnOn())
	err := r.TurnOn()
	require.Error(t, err)
	k, ok := perr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, perr.InvalidArgument, k)
}

func TestStartTxEnqueuesTransmission(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.1, 1.0, 3, okPropagation, sched)
	require.NoError(t, r.TurnOn())

	frame := payload.LlcPayload{Seq: 5}
	require.NoError(t, r.StartTx(2, frame, nil))
	assert.Equal(t, Transmitting, r.State())
	require.Len(t, sched.enqueued, 1)
	tr := sched.enqueued[0]
	assert.Equal(t, uint64(3), tr.Duration)
	assert.Equal(t, uint64(3), tr.Remaining)
	assert.Equal(t, uint16(5), tr.Frame.Seq)

	require.NoError(t, r.StopTx())
	assert.Equal(t, Idle, r.State())
}

func TestStartTxWhileOffIsInvalid(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.1, 1.0, 1, okPropagation, sched)
	err := r.StartTx(2, payload.LlcPayload{}, nil)
	require.Error(t, err)
}

func TestStopTxWhileNotTransmittingIsFatal(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.1, 1.0, 1, okPropagation, sched)
	require.NoError(t, r.TurnOn())
	err := r.StopTx()
	require.Error(t, err)
	k, _ := perr.KindOf(err)
	assert.Equal(t, perr.Fatal, k)
}

func TestStartStopReceivingBelowSensitivityDrops(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.5, 1.0, 1, okPropagation, sched)
	require.NoError(t, r.TurnOn())

	r.StartReceiving(0.1, payload.RadioPayload{})
	assert.Equal(t, Idle, r.State()) // below sensitivity: stays idle, nothing snapshot
	ready, ok := r.StopReceiving()
	assert.False(t, ok)
	assert.Nil(t, ready)
}

func TestStartStopReceivingAboveSensitivityDelivers(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.1, 1.0, 1, okPropagation, sched)
	require.NoError(t, r.TurnOn())

	rp := payload.RadioPayload{}
	rp.Seq = 9
	r.StartReceiving(0.5, rp)
	assert.Equal(t, Receiving, r.State())

	ready, ok := r.StopReceiving()
	require.True(t, ok)
	require.NotNil(t, ready)
	assert.Equal(t, uint16(9), ready.Seq)
	assert.Equal(t, Idle, r.State())
}

func TestOverlappingReceptionTaints(t *testing.T) {
	sched := &fakeScheduler{}
	r := New(1, 0.1, 1.0, 1, okPropagation, sched)
	require.NoError(t, r.TurnOn())

	r.StartReceiving(0.5, payload.RadioPayload{})
	r.StartReceiving(0.6, payload.RadioPayload{}) // second, overlapping, above sensitivity

	ready, ok := r.StopReceiving()
	assert.False(t, ok, "tainted reception must not be delivered")
	assert.Nil(t, ready)
	assert.Equal(t, Idle, r.State())
}
