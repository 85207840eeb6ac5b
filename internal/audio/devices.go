package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one Pulse input source.
type Device struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	State       string `json:"state"`
	Available   bool   `json:"available"`
	Muted       bool   `json:"muted"`
	Default     bool   `json:"default"`
}

// Selection is the resolved capture source plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("scribe"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrDeviceNotFound, err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return listDevices(client)
}

func listDevices(client *pulse.Client) ([]Device, error) {
	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}
	defaultID := defaultSource.ID()

	var sourceInfos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &sourceInfos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(sourceInfos))
	for _, source := range sourceInfos {
		if source == nil || isMonitorSource(source.SourceName) {
			continue
		}
		devices = append(devices, Device{
			ID:          source.SourceName,
			Description: source.Device,
			State:       sourceStateString(source.State),
			Available:   sourceAvailable(source),
			Muted:       source.Mute,
			Default:     source.SourceName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves input/fallback preferences against live devices.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// selectDeviceFromList picks the capture source for the configured input,
// falling back to the fallback term (or the default source) when the input is
// muted or unplugged. Missing or unplugged devices wrap ErrDeviceNotFound;
// muted ones wrap ErrPermissionDenied.
func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, fmt.Errorf("%w: no audio input devices found", ErrDeviceNotFound)
	}
	input = normalizeTerm(input)
	fallback = normalizeTerm(fallback)

	primary, err := resolveDevice(devices, input)
	if err != nil {
		return Selection{}, err
	}
	if usabilityErr(*primary) == nil {
		return Selection{Device: *primary}, nil
	}
	reason := unusableReason(*primary)

	alternate, err := resolveDevice(devices, fallback)
	if err != nil {
		if fallback == "" {
			return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: %w", primary.ID, reason, err)
		}
		return Selection{}, fmt.Errorf("%w: primary input %q is %s and fallback %q not found", usabilityErr(*primary), primary.ID, reason, fallback)
	}
	if err := usabilityErr(*alternate); err != nil {
		return Selection{}, fmt.Errorf("%w: audio fallback device %q is %s", err, alternate.ID, unusableReason(*alternate))
	}

	return Selection{
		Device:   *alternate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alternate.ID),
		Fallback: primary.ID != alternate.ID,
	}, nil
}

// normalizeTerm lowercases a search term; "default" and blank both mean the
// server's default source and normalize to "".
func normalizeTerm(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "default" {
		return ""
	}
	return term
}

// resolveDevice returns the default source for an empty term, or the first
// device whose id or description contains term.
func resolveDevice(devices []Device, term string) (*Device, error) {
	for i := range devices {
		if term == "" && devices[i].Default {
			return &devices[i], nil
		}
		if term != "" && deviceMatches(devices[i], term) {
			return &devices[i], nil
		}
	}
	if term == "" {
		return nil, fmt.Errorf("%w: default audio source is unavailable", ErrDeviceNotFound)
	}
	return nil, fmt.Errorf("%w: audio.input %q did not match any device", ErrDeviceNotFound, term)
}

func usabilityErr(d Device) error {
	switch {
	case !d.Available:
		return ErrDeviceNotFound
	case d.Muted:
		return ErrPermissionDenied
	}
	return nil
}

func unusableReason(d Device) string {
	if !d.Available {
		return "not available"
	}
	return "muted"
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func isMonitorSource(name string) bool {
	return strings.HasSuffix(name, ".monitor")
}

// sourceStateString maps Pulse source state constants to human-readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable maps Pulse source port availability to a simple boolean.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	if len(source.Ports) == 0 {
		return true
	}
	for _, port := range source.Ports {
		if port.Name != source.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
