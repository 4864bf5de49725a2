package mediator

// Request is implemented by every request type that expects a response of type R.
// Request types declare R by embedding Returns[R]:
//
//	type Greet struct {
//		cmed.Returns[string]
//		Name string
//	}
type Request[R any] interface {
	response() R
}

// Returns tags a request type with the response type its handler produces.
// It carries no data and is ignored by the codecs.
type Returns[R any] struct{}

func (Returns[R]) response() R {
	var zero R

	return zero
}
