package cloudevents

// Extension keys carried by the events the bus produces.
const (
	// ExtDeadLetter marks an envelope rerouted to a dead-letter endpoint.
	ExtDeadLetter = "fcdeadletter"
	// ExtComponent names the component that failed, or "Unknown".
	ExtComponent = "fccomponent"
	// ExtOriginEndpoint is the URI of the endpoint the failed event came from.
	ExtOriginEndpoint = "fcoriginendpoint"
	// ExtErrorMessage stores the failure text.
	ExtErrorMessage = "fcerror"
	// ExtErrorType stores the Go type of the classified failure.
	ExtErrorType = "fcerrortype"
	// ExtCorrelationID carries the correlation id of the failed message.
	ExtCorrelationID = "fccorrelationid"
	// ExtSessionID carries the session the failed message belonged to.
	ExtSessionID = "fcsessionid"
)

// Event types produced by the bus.
const (
	TypeDeadLetter = "flowcore.deadletter"
)

// IsDeadLetter reports whether evt is a dead-letter envelope.
func IsDeadLetter(evt Event) bool {
	v, _ := evt.Extensions[ExtDeadLetter].(bool)
	return v || evt.Type == TypeDeadLetter
}

// PrepareForDeadLetter stamps the dead-letter extensions on evt.
func PrepareForDeadLetter(evt *Event, component, origin string, err error) {
	evt.Extensions = cloneExtensions(evt.Extensions, 4)
	evt.Extensions[ExtDeadLetter] = true
	evt.Extensions[ExtComponent] = component
	if origin != "" {
		evt.Extensions[ExtOriginEndpoint] = origin
	}
	if err != nil {
		evt.Extensions[ExtErrorMessage] = err.Error()
	}
}

// CopyCorrelation copies correlation and session ids from src to dst.
func CopyCorrelation(src Event, dst *Event) {
	for _, key := range []string{ExtCorrelationID, ExtSessionID} {
		if v := src.ExtensionString(key); v != "" {
			*dst = dst.WithExtension(key, v)
		}
	}
}
