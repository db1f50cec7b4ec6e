package client

import (
	"sync"
)

// session is a single transport attempt, tagged with the controller
// generation that created it. Events it reports carry that tag so the
// controller can tell them apart from those of a newer transport.
type session struct {
	gen       uint64
	transport Transport

	writeMu sync.Mutex
}

func newSession(gen uint64, t Transport) *session {
	return &session{gen: gen, transport: t}
}

func (s *session) send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.transport.WriteMessage(data)
}

// run reads until the transport fails. Frames are handed over in receipt
// order; onClose is called exactly once.
func (s *session) run(onFrame func(gen uint64, data []byte), onClose func(gen uint64, err error)) {
	for {
		data, err := s.transport.ReadMessage()
		if err != nil {
			onClose(s.gen, err)
			return
		}
		onFrame(s.gen, data)
	}
}

func (s *session) close() error {
	return s.transport.Close()
}
