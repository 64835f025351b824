package mdp

// Majordomo Management Interface: diagnostic pseudo-services a client can
// call like any other job, used to introspect broker state without a
// dedicated admin protocol. The namespace, well-known names, and
// response codes are declared in const.go alongside the rest of the
// wire-level protocol constants.

// MMIHandler answers management queries against a Registry.
type MMIHandler struct {
	registry *Registry
}

// NewMMIHandler builds an MMIHandler reading from registry.
func NewMMIHandler(registry *Registry) *MMIHandler {
	return &MMIHandler{registry: registry}
}

// HandleRequest inspects frame as a client job request; if its target
// falls under MMINamespace it answers directly and returns handled=true
// with a ready-to-send result frame. Any other frame is left untouched
// for normal dispatch.
func (m *MMIHandler) HandleRequest(frame [][]byte) (reply [][]byte, handled bool) {
	job, err := DecodeJob(frame)
	if err != nil || len(job.TargetName) < len(MMINamespace) || job.TargetName[:len(MMINamespace)] != MMINamespace {
		return nil, false
	}

	switch job.TargetName {
	case MMIWorkers:
		return EncodeResult("mmi", true, []byte(m.workersReport())), true
	case MMIService:
		return EncodeResult("mmi", true, []byte(m.serviceReport())), true
	default:
		return EncodeResult("mmi", false, []byte(MMICodeNotFound)), true
	}
}

func (m *MMIHandler) workersReport() string {
	workers := m.registry.Snapshot()
	out := make([]byte, 0, 16)
	out = append(out, []byte(MMICodeOK)...)
	out = append(out, ' ')
	for i, w := range workers {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, []byte(w.Identity)...)
	}
	return string(out)
}

func (m *MMIHandler) serviceReport() string {
	if m.registry.IdleCount() > 0 {
		return MMICodeOK
	}
	return MMICodeNotFound
}
