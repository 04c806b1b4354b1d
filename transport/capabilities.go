package transport

// Capabilities describes what a transport backend guarantees. The bus uses
// them to warn when a dead-letter endpoint sits on a transport that can lose
// messages.
type Capabilities struct {
	Name string

	// SupportsOrdering means messages of one topic arrive in publish order.
	SupportsOrdering bool
	// SupportsAck means the subscriber acknowledges messages explicitly.
	SupportsAck bool
	// SupportsNack means a negative acknowledgement redelivers the message.
	SupportsNack bool
	// SupportsNativeDLQ means the broker can dead-letter on its own. The bus
	// still routes exceptions itself.
	SupportsNativeDLQ bool
	// SupportsRequestReply means a reply topic created per request is
	// delivered to the waiting subscriber, which remote-sync endpoints need.
	SupportsRequestReply bool
	// Persistent means messages survive a process restart.
	Persistent bool

	// MaxMessageSize in bytes; zero is unknown.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports at-least-once semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// SafeForDeadLetters reports whether a dead letter handed to the transport
// survives until someone reads it.
func (c Capabilities) SafeForDeadLetters() bool {
	return c.Persistent && c.SupportsAck
}

var (
	ChannelCapabilities = Capabilities{
		Name:                 "channel",
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsRequestReply: true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		Persistent:       true,
		MaxMessageSize:   1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                 "rabbitmq",
		SupportsOrdering:     true,
		SupportsAck:          true,
		SupportsNack:         true,
		SupportsNativeDLQ:    true,
		SupportsRequestReply: true,
		Persistent:           true,
	}

	NATSCapabilities = Capabilities{
		Name:                 "nats",
		SupportsRequestReply: true,
		MaxMessageSize:       1048576,
	}

	AWSCapabilities = Capabilities{
		Name:              "aws",
		SupportsOrdering:  true,
		SupportsAck:       true,
		SupportsNack:      true,
		SupportsNativeDLQ: true,
		Persistent:        true,
		MaxMessageSize:    262144,
	}

	HTTPCapabilities = Capabilities{
		Name: "http",
	}
)
