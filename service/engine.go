package service

// Engine runs the super-resolution model on one unbatched (H,W,3) tensor.
// InputSize is fixed for the lifetime of the engine.
//
// Implementations need not be safe for concurrent use; callers that share an
// Engine across goroutines serialize access themselves.
type Engine interface {
	InputSize() Size
	Predict(in Tensor) (Tensor, error)
}

type unavailable struct {
	size  Size
	cause error
}

// Unavailable returns the engine used when the model could not be loaded.
// It reports size as its input resolution and fails every prediction with
// ErrModelUnavailable.
func Unavailable(size Size, cause error) Engine {
	return &unavailable{size: size, cause: cause}
}

func (u *unavailable) InputSize() Size { return u.size }

func (u *unavailable) Predict(Tensor) (Tensor, error) {
	return Tensor{}, stageErr(ErrModelUnavailable, u.cause)
}

// Available reports whether e can run predictions at all.
func Available(e Engine) bool {
	_, degraded := e.(*unavailable)
	return !degraded
}
