package fieldbus

import (
	"errors"
	"testing"

	"github.com/consus-energy/edge-controller/registermap"
	"github.com/consus-energy/edge-controller/writeguard"
	"github.com/stretchr/testify/require"
)

func testRegisterMap(t *testing.T) *registermap.Map {
	t.Helper()
	m, err := registermap.New([]registermap.Descriptor{
		{Name: "battery_soc_percent", Address: 100, WordCount: 1, Signed: false, Scale: 10, Access: registermap.AccessRead},
		{Name: "ems_power_set", Address: 200, WordCount: 2, Signed: true, Scale: 1, Access: registermap.AccessReadWrite},
		{Name: "ems_power_mode", Address: 202, WordCount: 1, Signed: false, Scale: 1, Access: registermap.AccessReadWrite},
	})
	require.NoError(t, err)
	return m
}

func TestDriverReadByNameScalesValue(t *testing.T) {
	mt := NewMockTransport()
	mt.Set(100, 755) // 75.5%
	d := NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)

	v, err := d.ReadByName("battery_soc_percent")
	require.NoError(t, err)
	require.InDelta(t, 75.5, v, 0.001)
}

func TestDriverReadByNameUnknownRegister(t *testing.T) {
	mt := NewMockTransport()
	d := NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)

	_, err := d.ReadByName("does_not_exist")
	require.ErrorIs(t, err, registermap.ErrUnknownRegister)
}

func TestDriverWriteByNameRoundTrips(t *testing.T) {
	mt := NewMockTransport()
	d := NewDriverWithTransport(mt, testRegisterMap(t), writeguard.New(writeguard.Config{}), nil)

	err := d.WriteByName("ems_power_set", -1500)
	require.NoError(t, err)

	v, err := d.ReadByName("ems_power_set")
	require.NoError(t, err)
	require.InDelta(t, -1500, v, 0.001)
}

func TestDriverWriteByNameRejectsReadOnlyRegister(t *testing.T) {
	mt := NewMockTransport()
	d := NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)

	err := d.WriteByName("battery_soc_percent", 50)
	require.Error(t, err)
}

func TestDriverWriteByNameSurfacesGuardRejection(t *testing.T) {
	mt := NewMockTransport()
	guard := writeguard.New(writeguard.Config{})
	d := NewDriverWithTransport(mt, testRegisterMap(t), guard, nil)

	require.NoError(t, d.WriteByName("ems_power_set", 1000))

	err := d.WriteByName("ems_power_set", 1000)
	require.Error(t, err)
	require.ErrorIs(t, err, writeguard.ErrRejected)
}

func TestDriverReadByNameReconnectsOnceOnFailure(t *testing.T) {
	mt := NewMockTransport()
	mt.Set(100, 500)
	mt.FailReads = errors.New("connection reset")

	d := NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	d.dialFunc = func() (Transport, error) {
		mt.FailReads = nil
		return mt, nil
	}

	v, err := d.ReadByName("battery_soc_percent")
	require.NoError(t, err)
	require.InDelta(t, 50, v, 0.001)
}

func TestDriverCloseIsIdempotent(t *testing.T) {
	mt := NewMockTransport()
	d := NewDriverWithTransport(mt, testRegisterMap(t), nil, nil)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}
