/*
Package runtime wires the flowcore event core into a running service.

# Architecture Overview

A Service owns a watermill router, the transports built from the registry,
a worker pool and the shared statistics. Components are user objects
wrapped in a lifecycle adapter; the Service feeds them the messages that
arrive on their inbound endpoints.

## Core Service (service.go)

The Service struct wires together:
  - Message router (Watermill) and its middleware chain
  - Transports, built lazily and shared per transport name
  - Endpoints, cached per URI
  - The worker pool running asynchronous events
  - Component statistics and the notification manager
  - HTTP servers for metrics and status

## Inbound (inbound.go)

RegisterInbound subscribes a component to an endpoint. Each received message
is restored into a session, wrapped in an event bound to the handler's
owner and dispatched to the component. A message naming a reply topic on a
remote-sync endpoint is processed synchronously and answered.

## Middleware (middleware.go)

  - CorrelationID: Ensures message traceability
  - LogMessages: Debug logging of message payloads
  - Tracer: OpenTelemetry distributed tracing
  - Metrics: Prometheus metrics collection
  - Recoverer: Panic recovery

Failures are not retried. They go to the component's exception strategy,
which reroutes the message to a dead-letter endpoint.

## Client (client.go)

Dispatch, Send and Receive let code outside any component talk to an
endpoint through a component-less session.

# Sub-packages

  - component/: Event delivery to lifecycle adapters and outbound routing
  - config/: Service configuration with validation
  - endpoint/: In-memory and watermill-backed endpoints
  - errors/: Sentinel errors and error types
  - event/: Events and the collaborator contracts
  - exception/: Dead-letter exception strategies
  - lifecycle/: Component lifecycle adapter and entry-point resolution
  - message/: Messages, payload conversion and exception payloads
  - ownership/: Bind/seal access assertions
  - requestctx/: The per-request active event
  - session/: Sessions and session headers
  - transaction/: Transaction contracts
  - workmanager/: Worker pool for asynchronous dispatch

# Usage Example

	cfg := &flowcore.Config{
		PubSubSystem:        "kafka",
		KafkaBrokers:        []string{"localhost:9092"},
		DeadLetterEndpoints: []string{"kafka://orders.dlq"},
	}

	svc, err := flowcore.NewService(cfg, logger, ctx, flowcore.ServiceDependencies{})
	c, err := svc.NewComponent(ctx, "orders", processOrder, flowcore.ComponentOptions{
		Outbound: []string{"kafka://orders.processed"},
	})
	err = svc.RegisterInbound(ctx, "kafka://orders.created", c)

	svc.Start(ctx)
*/
package runtime
