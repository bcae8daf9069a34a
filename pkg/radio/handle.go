package radio

import "sync"

// Handle holds the only reference to a radio Controller until it is
// moved to its owner with Take. Afterwards no other component can get
// to the radio through the handle.
type Handle struct {
	ctl   Controller
	taken bool
	lock  sync.Mutex
}

// NewHandle wraps the controller of a freshly initialized radio.
func NewHandle(ctl Controller) *Handle {
	return &Handle{ctl: ctl}
}

// TryTake moves the controller out of the handle.
func (h *Handle) TryTake() (Controller, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.taken {
		return nil, ErrAlreadyTaken
	}
	h.taken = true
	ctl := h.ctl
	h.ctl = nil
	return ctl, nil
}

// Take moves the controller out of the handle and panics if it was
// already taken.
func (h *Handle) Take() Controller {
	ctl, err := h.TryTake()
	if err != nil {
		panic(err)
	}
	return ctl
}

// Taken reports whether the controller has been moved.
func (h *Handle) Taken() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.taken
}
