package voice

// Event is a tagged domain event produced by the platform event
// adapter and consumed by the session's dispatch handlers.
type Event interface {
	isEvent()
}

// ConnectionReady fires when the voice connection becomes ready.
type ConnectionReady struct{}

// ConnectionDisconnected fires when the platform reports the
// connection dropped.
type ConnectionDisconnected struct{}

// ConnectionDestroyed fires when the connection was torn down.
type ConnectionDestroyed struct{}

// ConnectionError carries a transport-level error.
type ConnectionError struct {
	Err error
}

// PlayerIdle fires when the audio player finished its resource.
type PlayerIdle struct{}

// PlayerError carries a playback error.
type PlayerError struct {
	Err error
}

func (ConnectionReady) isEvent()        {}
func (ConnectionDisconnected) isEvent() {}
func (ConnectionDestroyed) isEvent()    {}
func (ConnectionError) isEvent()        {}
func (PlayerIdle) isEvent()             {}
func (PlayerError) isEvent()            {}
