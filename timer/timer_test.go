package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdsns/sim/types"
)

func TestNextExpiryEmpty(t *testing.T) {
	m := NewManager()
	assert.Equal(t, Ever, m.NextExpiry())
}

func TestRegisterAndFire(t *testing.T) {
	m := NewManager()
	m.AddNode(1)
	m.AddNode(2)
	m.AddNode(3)

	m.Register(1, types.MacLayer, 100)
	m.Register(2, types.LlcLayer, 50)
	m.Register(3, types.LinkLayer, 100)

	require.Equal(t, uint64(50), m.NextExpiry())

	fired := m.Fire(50)
	require.Len(t, fired, 1)
	assert.Equal(t, types.NodeID(2), fired[0].Node)
	assert.Equal(t, types.LlcLayer, fired[0].Layer)

	// node 2's registration is now cleared
	assert.Equal(t, uint64(100), m.NextExpiry())

	fired = m.Fire(100)
	require.Len(t, fired, 2)
	ids := []types.NodeID{fired[0].Node, fired[1].Node}
	assert.ElementsMatch(t, []types.NodeID{1, 3}, ids)

	assert.Equal(t, Ever, m.NextExpiry())
}

func TestCancel(t *testing.T) {
	m := NewManager()
	m.AddNode(1)
	m.Register(1, types.RadioLayer, 10)
	m.Cancel(1)
	assert.Equal(t, Ever, m.NextExpiry())
	assert.Empty(t, m.Fire(10))
}

func TestRegisterOverwritesPriorPending(t *testing.T) {
	m := NewManager()
	m.AddNode(1)
	m.Register(1, types.RadioLayer, 10)
	m.Register(1, types.MacLayer, 20)
	assert.Equal(t, uint64(20), m.NextExpiry())
	assert.Empty(t, m.Fire(10))
	fired := m.Fire(20)
	require.Len(t, fired, 1)
	assert.Equal(t, types.MacLayer, fired[0].Layer)
}

func TestDeleteNode(t *testing.T) {
	m := NewManager()
	m.AddNode(1)
	m.AddNode(2)
	m.Register(1, types.RadioLayer, 10)
	m.DeleteNode(1)
	assert.Equal(t, Ever, m.NextExpiry())
}
