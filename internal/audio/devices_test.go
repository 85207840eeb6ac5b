package audio

import (
	"context"
	"reflect"
	"testing"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromList(t *testing.T) {
	headset := Device{ID: "alsa_input.usb-jabra", Description: "Jabra Evolve2 65", Available: true, Default: true}
	boom := Device{ID: "alsa_input.usb-shure", Description: "Shure MV7 Exam Room", Available: true}

	with := func(d Device, edit func(*Device)) Device {
		edit(&d)
		return d
	}
	muted := func(d *Device) { d.Muted = true }
	unplugged := func(d *Device) { d.Available = false }

	tests := []struct {
		name         string
		devices      []Device
		input        string
		fallback     string
		wantID       string
		wantFallback bool
		wantWarning  string
		wantErr      error
		wantErrText  string
	}{
		{
			name:    "default source",
			devices: []Device{headset, boom},
			input:   "default",
			wantID:  headset.ID,
		},
		{
			name:    "input matched by description",
			devices: []Device{headset, boom},
			input:   " Exam Room ",
			wantID:  boom.ID,
		},
		{
			name:         "muted input falls back",
			devices:      []Device{with(headset, muted), boom},
			input:        "jabra",
			fallback:     "shure",
			wantID:       boom.ID,
			wantFallback: true,
			wantWarning:  "muted",
		},
		{
			name:         "unplugged input falls back to default",
			devices:      []Device{headset, with(boom, unplugged)},
			input:        "shure",
			wantID:       headset.ID,
			wantFallback: true,
			wantWarning:  "not available",
		},
		{
			name:        "muted everywhere is a denial",
			devices:     []Device{with(headset, muted)},
			wantErr:     ErrPermissionDenied,
			wantErrText: "muted",
		},
		{
			name:     "muted input with missing fallback keeps the denial",
			devices:  []Device{with(headset, muted)},
			input:    "jabra",
			fallback: "shure",
			wantErr:  ErrPermissionDenied,
		},
		{
			name:     "unplugged input with missing fallback is not found",
			devices:  []Device{with(headset, unplugged)},
			input:    "jabra",
			fallback: "shure",
			wantErr:  ErrDeviceNotFound,
		},
		{
			name:        "unplugged fallback",
			devices:     []Device{with(headset, unplugged), with(boom, unplugged)},
			input:       "jabra",
			fallback:    "shure",
			wantErr:     ErrDeviceNotFound,
			wantErrText: "not available",
		},
		{
			name:        "unknown input",
			devices:     []Device{headset},
			input:       "missing",
			wantErr:     ErrDeviceNotFound,
			wantErrText: "did not match",
		},
		{
			name:        "no default source",
			devices:     []Device{with(boom, func(d *Device) { d.Default = false })},
			wantErr:     ErrDeviceNotFound,
			wantErrText: "default audio source",
		},
		{
			name:    "no devices",
			wantErr: ErrDeviceNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			selection, err := selectDeviceFromList(tc.devices, tc.input, tc.fallback)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.Contains(t, err.Error(), tc.wantErrText)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, selection.Device.ID)
			require.Equal(t, tc.wantFallback, selection.Fallback)
			if tc.wantWarning == "" {
				require.Empty(t, selection.Warning)
			} else {
				require.Contains(t, selection.Warning, tc.wantWarning)
			}
		})
	}
}

func TestNormalizeTerm(t *testing.T) {
	require.Equal(t, "", normalizeTerm(" Default "))
	require.Equal(t, "", normalizeTerm(""))
	require.Equal(t, "jabra", normalizeTerm(" JABRA"))
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-jabra", Description: "Jabra Evolve2 65"}
	require.True(t, deviceMatches(dev, "jabra"))
	require.True(t, deviceMatches(dev, "evolve2"))
	require.False(t, deviceMatches(dev, "missing"))
	require.False(t, deviceMatches(dev, ""))
}

func TestIsMonitorSource(t *testing.T) {
	require.True(t, isMonitorSource("alsa_output.pci.analog-stereo.monitor"))
	require.False(t, isMonitorSource("alsa_input.usb-jabra"))
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSelectDeviceFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := SelectDevice(context.Background(), "default", "default")
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(99)", sourceStateString(99))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{})) // no ports => available

	available := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, available, []sourcePort{{name: "mic", available: 2}})
	require.True(t, sourceAvailable(available))

	notAvailable := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, notAvailable, []sourcePort{{name: "mic", available: 1}})
	require.False(t, sourceAvailable(notAvailable))
}

type sourcePort struct {
	name      string
	available uint32
}

func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceType := reflect.TypeOf(reply.Ports)
	sliceValue := reflect.MakeSlice(sliceType, len(ports), len(ports))

	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}

	replyValue := reflect.ValueOf(reply).Elem().FieldByName("Ports")
	replyValue.Set(sliceValue)
}
