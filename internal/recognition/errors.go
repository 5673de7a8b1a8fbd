package recognition

import "errors"

// Recognition outcomes the kiosk-facing callers must tell apart. All of these
// are recoverable and rendered to the user, never panicked past a handler.
var (
	// ErrNoFaceDetected means the submitted image contained no detectable face.
	ErrNoFaceDetected = errors.New("no face detected in image")

	// ErrMultipleFaces means enrollment saw more than one face. Enrollment
	// requires exactly one so the embedding is unambiguous.
	ErrMultipleFaces = errors.New("multiple faces detected in image")

	// ErrEncodingFailed means a face was located but no embedding could be
	// produced from it.
	ErrEncodingFailed = errors.New("could not encode face")

	// ErrEmptyGallery means there are no enrolled embeddings to match against.
	// Callers respond differently from a below-threshold miss: enrollment
	// kiosks fall back to manual confirmation, the visitor flow treats the
	// probe as a brand-new visitor.
	ErrEmptyGallery = errors.New("no enrolled faces in gallery")

	// ErrIdentityNotFound means a claimed identity id has no record.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrEncoderUnavailable means the vision pipeline never came up; only
	// manual confirmation is possible until the service restarts with models.
	ErrEncoderUnavailable = errors.New("face encoder unavailable")
)
