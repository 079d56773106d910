package connection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecal-sub/ecal/datatype"
	"github.com/ecal-sub/ecal/layer"
)

func key1() Key { return Key{HostName: "h", PID: 1, EntityID: "p1"} }
func key2() Key { return Key{HostName: "h", PID: 1, EntityID: "p2"} }

func TestApplyPublication_SecondTouchActivates(t *testing.T) {
	tbl := New()
	dti := datatype.Information{TypeName: "Foo"}
	states := map[layer.Kind]LayerState{layer.UDP: {ReadEnabled: true}}

	ev := tbl.ApplyPublication(key1(), dti, states)
	assert.Nil(t, ev, "first touch is probation, no event yet")

	state, ok := tbl.Lookup(key1())
	require.True(t, ok)
	assert.False(t, state.Active)

	ev = tbl.ApplyPublication(key1(), dti, states)
	require.NotNil(t, ev)
	assert.Equal(t, Connected, ev.Kind)

	state, _ = tbl.Lookup(key1())
	assert.True(t, state.Active)
}

func TestApplyPublication_SubsequentAppliesFireUpdate(t *testing.T) {
	tbl := New()
	dti := datatype.Information{TypeName: "Foo"}

	tbl.ApplyPublication(key1(), dti, nil)
	tbl.ApplyPublication(key1(), dti, nil) // activates -> Connected

	ev := tbl.ApplyPublication(key1(), datatype.Information{TypeName: "Bar"}, nil)
	require.NotNil(t, ev)
	assert.Equal(t, UpdateConnection, ev.Kind)

	state, _ := tbl.Lookup(key1())
	assert.Equal(t, "Bar", state.DataTypeInfo.TypeName, "data_type_info is overwritten unconditionally")
}

func TestRemovePublication_FiresDisconnectOnlyAtZero(t *testing.T) {
	tbl := New()
	dti := datatype.Information{}

	tbl.ApplyPublication(key1(), dti, nil)
	tbl.ApplyPublication(key1(), dti, nil)
	tbl.ApplyPublication(key2(), dti, nil)
	tbl.ApplyPublication(key2(), dti, nil)
	require.Equal(t, 2, tbl.ActiveCount())

	ev := tbl.RemovePublication(key1())
	assert.Nil(t, ev, "2 active -> 1 active must not fire disconnected")
	assert.Equal(t, 1, tbl.ActiveCount())

	ev = tbl.RemovePublication(key2())
	require.NotNil(t, ev)
	assert.Equal(t, Disconnected, ev.Kind)
	assert.Equal(t, 0, tbl.ActiveCount())
}

func TestRemovePublication_UnknownKeyIsNoop(t *testing.T) {
	tbl := New()
	ev := tbl.RemovePublication(key1())
	assert.Nil(t, ev)
}

func TestApplyPublication_IdempotentAfterActiveFiresOnlyUpdate(t *testing.T) {
	tbl := New()
	dti := datatype.Information{}

	tbl.ApplyPublication(key1(), dti, nil)
	tbl.ApplyPublication(key1(), dti, nil) // Connected

	for i := 0; i < 3; i++ {
		ev := tbl.ApplyPublication(key1(), dti, nil)
		require.NotNil(t, ev)
		assert.Equal(t, UpdateConnection, ev.Kind, "repeated identical applies never re-fire Connected")
	}
}
