package betawatch

import "context"

// Notifier delivers alerts when a monitored beta becomes available.
//
// Notify is called once per transition into [StatusOpen]: when a key is
// first observed open, or when it reopens after being full, closed, or
// unknown. Repeated open observations do not re-notify.
//
// Notify is invoked from the watcher's result loop within a panic recovery
// boundary; a panicking or failing notifier is logged and does not stop
// monitoring. Implementations should honor the context's deadline.
type Notifier interface {
	Notify(ctx context.Context, record StatusRecord) error
}

// Heartbeater is an optional extension of [Notifier]. When the watcher is
// configured with a heartbeat interval and the notifier implements
// Heartbeater, a periodic liveness message is delivered through it.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// NotifierFunc adapts a plain function to the [Notifier] interface.
//
//	w, _ := betawatch.New(
//	    betawatch.WithKeys("abc12345"),
//	    betawatch.WithNotifier(betawatch.NotifierFunc(func(ctx context.Context, r betawatch.StatusRecord) error {
//	        log.Printf("%s is open!", r.Key)
//	        return nil
//	    })),
//	)
type NotifierFunc func(ctx context.Context, record StatusRecord) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, record StatusRecord) error {
	return f(ctx, record)
}
