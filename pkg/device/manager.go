package device

import (
	"fmt"

	"github.com/Amr-9/KeyHunter/pkg/search"
)

// ManagerError reports a failure to enumerate or open devices.
type ManagerError struct {
	Msg string
	Err error
}

func (e *ManagerError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ManagerError) Unwrap() error { return e.Err }

// Manager assigns logical ids to the devices of its backends, in backend order and
// then in each backend's own device order.
type Manager struct {
	backends []Backend
}

// NewManager returns a manager over the given backends. Nil backends are ignored.
func NewManager(backends ...Backend) *Manager {
	m := &Manager{}
	for _, b := range backends {
		if b != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

type entry struct {
	info    Info
	backend Backend
}

func (m *Manager) enumerate() ([]entry, error) {
	var entries []entry
	for _, b := range m.backends {
		devices, err := b.Devices()
		if err != nil {
			return nil, &ManagerError{Msg: fmt.Sprintf("unable to list %s devices", b.Type()), Err: err}
		}
		for _, d := range devices {
			entries = append(entries, entry{
				info: Info{
					ID:           len(entries),
					PhysicalID:   d.ID,
					Name:         d.Name,
					Type:         b.Type(),
					Memory:       d.Memory,
					ComputeUnits: d.ComputeUnits,
					ListOnly:     d.ListOnly,
				},
				backend: b,
			})
		}
	}
	return entries, nil
}

// Devices lists every device across all backends. A failure in any backend fails the
// whole listing.
func (m *Manager) Devices() ([]Info, error) {
	entries, err := m.enumerate()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, len(entries))
	for i, e := range entries {
		infos[i] = e.info
	}
	return infos, nil
}

func (m *Manager) lookup(id int) (entry, error) {
	entries, err := m.enumerate()
	if err != nil {
		return entry{}, err
	}
	if id < 0 || id >= len(entries) {
		return entry{}, &ManagerError{Msg: fmt.Sprintf("no device with id %d (%d available)", id, len(entries))}
	}
	return entries[id], nil
}

// Info returns the description of the device with the given logical id.
func (m *Manager) Info(id int) (Info, error) {
	e, err := m.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return e.info, nil
}

// Open opens the device with the given logical id. List-only devices are refused
// without asking their backend.
func (m *Manager) Open(id int, opts Options) (search.Device, error) {
	e, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if e.info.ListOnly {
		return nil, &ManagerError{Msg: fmt.Sprintf("device %d (%s) can be listed but not searched", id, e.info.Name)}
	}
	dev, err := e.backend.Open(e.info.PhysicalID, opts)
	if err != nil {
		return nil, &ManagerError{Msg: fmt.Sprintf("unable to open device %d (%s)", id, e.info.Name), Err: err}
	}
	return dev, nil
}
