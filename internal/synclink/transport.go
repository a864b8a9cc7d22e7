package synclink

// Transport moves encoded envelopes between the two devices.
//
// Publish is the low-latency immediate path, fire-and-forget. The link
// never blocks on delivery. PublishRetained persists the latest-value
// application context so a peer that attaches later still observes it.
type Transport interface {
	// Start connects the transport and registers callbacks for inbound
	// payloads and connectivity changes. Callbacks may be invoked from
	// the transport's own goroutines.
	Start(onMessage func([]byte), onConnectionChange func(connected bool)) error

	Publish(data []byte) error
	PublishRetained(data []byte) error

	Connected() bool
	Close()
}
