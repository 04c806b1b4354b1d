// Package transports registers every built-in transport.
package transports

import (
	"github.com/drblury/flowcore/transport"
	"github.com/drblury/flowcore/transport/aws"
	"github.com/drblury/flowcore/transport/channel"
	"github.com/drblury/flowcore/transport/http"
	"github.com/drblury/flowcore/transport/kafka"
	"github.com/drblury/flowcore/transport/nats"
	"github.com/drblury/flowcore/transport/rabbitmq"
)

// Register adds the built-in transports to reg.
func Register(reg *transport.Registry) *transport.Registry {
	channel.Register(reg)
	kafka.Register(reg)
	rabbitmq.Register(reg)
	nats.Register(reg)
	http.Register(reg)
	aws.Register(reg)
	return reg
}

// NewRegistry returns a registry holding the built-in transports.
func NewRegistry() *transport.Registry {
	return Register(transport.NewRegistry())
}
