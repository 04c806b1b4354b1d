// Package flowcore is the event core of an integration bus, built on top of
// Watermill. Messages arrive on endpoints addressed by URI, are wrapped in
// events carrying their session, and are delivered to components: user
// objects driven through a lifecycle and invoked through an entry point.
// Results are routed to outbound endpoints, synchronously when the caller
// awaits a reply.
//
// Service hosts the Watermill router and wires the rest: NewComponent wraps an
// object in a lifecycle adapter with hooks, statistics and an exception
// strategy; RegisterInbound subscribes it to an endpoint; Dispatch, Send and
// Receive let code outside any component reach an endpoint. A minimal setup
// fills Config, creates a Service, registers components and calls Start.
//
// # Transports
//
// Endpoint URI schemes resolve to transports through a registry:
//   - vm, channel: In-memory Go channels
//   - kafka: Kafka topics with consumer groups
//   - amqp, amqps, rabbitmq: Durable RabbitMQ queues
//   - nats: NATS subjects
//   - http, https: HTTP push with a listening subscriber
//   - sns, sqs, aws: AWS SNS/SQS with LocalStack support
//
// The transport URI parameter picks a registered transport explicitly.
//
// # Ownership
//
// Messages and events bind to the first owner that touches them. A foreign
// read seals the object; a foreign write fails with an access violation.
// Owners travel in the context; worker-pool workers and inbound handlers each
// install their own. The checks cost a lock per access and are off unless
// Config.OwnershipChecks or SetOwnershipChecks turns them on.
//
// # Exceptions
//
// A failed event goes to its component's exception strategy. It classifies
// the failure, counts it, and reroutes the failed message as a
// flowcore.deadletter CloudEvent to the first dead-letter endpoint. Nothing
// is retried. Without a dead-letter endpoint the active transaction is
// marked rollback-only; a failed dead-letter dispatch is logged as fatal.
//
// # Middleware
//
// The default router middleware chain injects correlation IDs, logs messages
// at debug level, opens an OpenTelemetry span, records Prometheus metrics and
// recovers panics. Custom middleware can be added via
// ServiceDependencies.Middlewares.
package flowcore
