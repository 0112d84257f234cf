package echo

// Responder produces the response payload for one inbound message.
// It must be a pure function: it runs on every connection goroutine.
type Responder func(msg string) string

// PrefixResponder echoes msg behind prefix.
func PrefixResponder(prefix string) Responder {
	return func(msg string) string {
		return prefix + msg
	}
}
