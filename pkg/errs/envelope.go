package errs

// Envelope is the standard result wrapper every public operation returns,
// per the error handling design: {ok, data?, error?}.
type Envelope[T any] struct {
	OK    bool   `json:"ok"`
	Data  T      `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Ok wraps a successful result.
func Ok[T any](data T) Envelope[T] {
	return Envelope[T]{OK: true, Data: data}
}

// Fail wraps a failed result. The zero value of T is returned as Data so
// callers inspecting a failed envelope for partial results (e.g. an analyze
// call that gathered attempts before failing) still get a typed zero value;
// callers that need partial data on failure should encode it inside err's
// Details or return it via a separate channel, not through Envelope.Data.
func Fail[T any](err *Error) Envelope[T] {
	var zero T
	return Envelope[T]{OK: false, Data: zero, Error: err}
}
