package media

import (
	"github.com/cockroachdb/errors"
	"github.com/jonas747/dca"
)

// encodedResource streams opus frames from an ffmpeg encode session.
type encodedResource struct {
	session *dca.EncodeSession
}

// newEncodedResource starts an ffmpeg encode session for the given
// stream URL and wraps it as an audio resource.
func newEncodedResource(streamURL string) (*encodedResource, error) {
	options := *dca.StdEncodeOptions
	options.RawOutput = true

	session, err := dca.EncodeFile(streamURL, &options)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start encode session")
	}
	return &encodedResource{session: session}, nil
}

// ReadFrame returns the next opus frame. io.EOF signals the end of the
// stream.
func (r *encodedResource) ReadFrame() ([]byte, error) {
	return r.session.OpusFrame()
}

// Close stops the encode session and releases its resources.
func (r *encodedResource) Close() error {
	r.session.Cleanup()
	return nil
}
