package event

// Disposition tells the consumer loop what to do with a handled message.
type Disposition int

const (
	// Ack commits the offset; the message is done.
	Ack Disposition = iota
	// Drop commits the offset but records why the message was discarded.
	Drop
	// Retry leaves the offset uncommitted and re-runs the handler.
	Retry
)

// Outcome is the result of handling one message. Business handlers return
// it instead of deciding transport retry policy themselves.
type Outcome struct {
	Disposition Disposition
	Reason      string
	Err         error
}

func Acked() Outcome { return Outcome{Disposition: Ack} }

func Dropped(reason string) Outcome { return Outcome{Disposition: Drop, Reason: reason} }

func Retryable(err error) Outcome { return Outcome{Disposition: Retry, Err: err} }
