package flowcore

import (
	runtimepkg "github.com/drblury/flowcore/internal/runtime"
	ce "github.com/drblury/flowcore/internal/runtime/cloudevents"
	componentpkg "github.com/drblury/flowcore/internal/runtime/component"
	configpkg "github.com/drblury/flowcore/internal/runtime/config"
	endpointpkg "github.com/drblury/flowcore/internal/runtime/endpoint"
	errspkg "github.com/drblury/flowcore/internal/runtime/errors"
	eventpkg "github.com/drblury/flowcore/internal/runtime/event"
	exceptionpkg "github.com/drblury/flowcore/internal/runtime/exception"
	idspkg "github.com/drblury/flowcore/internal/runtime/ids"
	jsoncodec "github.com/drblury/flowcore/internal/runtime/jsoncodec"
	lifecyclepkg "github.com/drblury/flowcore/internal/runtime/lifecycle"
	loggingpkg "github.com/drblury/flowcore/internal/runtime/logging"
	messagepkg "github.com/drblury/flowcore/internal/runtime/message"
	metadatapkg "github.com/drblury/flowcore/internal/runtime/metadata"
	notificationpkg "github.com/drblury/flowcore/internal/runtime/notification"
	ownershippkg "github.com/drblury/flowcore/internal/runtime/ownership"
	requestctxpkg "github.com/drblury/flowcore/internal/runtime/requestctx"
	sessionpkg "github.com/drblury/flowcore/internal/runtime/session"
	statspkg "github.com/drblury/flowcore/internal/runtime/stats"
	transactionpkg "github.com/drblury/flowcore/internal/runtime/transaction"
	uripkg "github.com/drblury/flowcore/internal/runtime/uri"
	workmanagerpkg "github.com/drblury/flowcore/internal/runtime/workmanager"
	transportpkg "github.com/drblury/flowcore/transport"
	"github.com/drblury/flowcore/transport/transports"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	ComponentOptions    = runtimepkg.ComponentOptions
	HandlerInfo         = runtimepkg.HandlerInfo
	Status              = runtimepkg.Status

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Core model
	Message          = messagepkg.Message
	Attachment       = messagepkg.Attachment
	ExceptionPayload = messagepkg.ExceptionPayload
	Event            = eventpkg.Event
	Endpoint         = eventpkg.Endpoint
	Component        = eventpkg.Component
	OutboundRouter   = eventpkg.OutboundRouter
	Transformer      = eventpkg.Transformer
	TransformerFunc  = eventpkg.TransformerFunc
	Session          = sessionpkg.Session
	SessionOptions   = sessionpkg.Options
	ResponseHook     = sessionpkg.ResponseHook
	URI              = uripkg.URI
	Owner            = ownershippkg.Owner
	OwnershipState   = ownershippkg.State
	Transaction      = transactionpkg.Transaction

	// Components and lifecycle
	ComponentRuntime   = componentpkg.Component
	EndpointRouter     = componentpkg.EndpointRouter
	Adapter            = lifecyclepkg.Adapter
	AdapterOptions     = lifecyclepkg.Options
	EntryPoint         = lifecyclepkg.EntryPoint
	EntryPointResolver = lifecyclepkg.EntryPointResolver
	InvocationContext  = lifecyclepkg.InvocationContext
	InvocationHooks    = lifecyclepkg.InvocationHooks
	WorkManager        = workmanagerpkg.Pool

	// Endpoints
	EndpointConfig    = endpointpkg.Config
	MemoryEndpoint    = endpointpkg.Memory
	WatermillEndpoint = endpointpkg.Watermill

	// Exceptions
	ExceptionStrategy  = exceptionpkg.Strategy
	ComponentStrategy  = exceptionpkg.ComponentStrategy
	ExceptionOptions   = exceptionpkg.Options
	EndpointSelector   = exceptionpkg.EndpointSelector
	DeadLetter         = exceptionpkg.DeadLetter
	MessagingError     = messagepkg.MessagingError
	RoutingError       = messagepkg.RoutingError
	LifecycleError     = errspkg.LifecycleError
	DispatchError      = errspkg.DispatchError
	FatalError         = errspkg.FatalError
	StateError         = errspkg.StateError
	ConfigurationError = errspkg.ConfigurationError

	// Notifications and statistics
	Notification        = notificationpkg.Notification
	NotificationManager = notificationpkg.Manager
	Metrics             = statspkg.Metrics
	StatisticsSnapshot  = statspkg.Snapshot

	CloudEvent = ce.Event
	Metadata   = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError

	// Transports
	Transport             = transportpkg.Transport
	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	ValidateConfig = configpkg.ValidateConfig

	NewMessage           = messagepkg.New
	NewMessageWithProps  = messagepkg.NewWithProperties
	NewCorrelatedMessage = messagepkg.NewCorrelated
	NewEvent             = eventpkg.New
	NewSession           = sessionpkg.New
	ParseURI             = uripkg.Parse
	NewOwner             = ownershippkg.NewOwner
	WithOwner            = ownershippkg.WithOwner

	NewAdapter        = lifecyclepkg.NewAdapter
	NewComponent      = componentpkg.New
	NewEndpointRouter = componentpkg.NewEndpointRouter
	NewWorkManager    = workmanagerpkg.New

	NewMemoryEndpoint    = endpointpkg.NewMemory
	NewWatermillEndpoint = endpointpkg.NewWatermill

	NewExceptionStrategy = exceptionpkg.New
	NewComponentStrategy = exceptionpkg.NewComponentStrategy
	DecodeDeadLetter     = exceptionpkg.DecodeDeadLetter

	LoggingHooks  = lifecyclepkg.LoggingHooks
	MetricsHooks  = lifecyclepkg.MetricsHooks
	AlertingHooks = lifecyclepkg.AlertingHooks

	// Request context
	ActiveEvent         = requestctxpkg.Event
	SetActiveEvent      = requestctxpkg.SetEvent
	RewriteEvent        = requestctxpkg.RewriteEvent
	EnterRequest        = requestctxpkg.Enter
	WithTransaction     = transactionpkg.WithTransaction
	NewLocalTransaction = transactionpkg.NewLocal

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewCloudEvent = ce.New
	IsDeadLetter  = ce.IsDeadLetter

	// Transport registry
	NewTransportRegistry = transports.NewRegistry
	RegisterTransports   = transports.Register

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrConfigRequired          = errspkg.ErrConfigRequired
	ErrMessageRequired         = errspkg.ErrMessageRequired
	ErrSessionRequired         = errspkg.ErrSessionRequired
	ErrEndpointRequired        = errspkg.ErrEndpointRequired
	ErrComponentRequired       = errspkg.ErrComponentRequired
	ErrNoOutboundRoute         = errspkg.ErrNoOutboundRoute
	ErrNoEntryPoint            = errspkg.ErrNoEntryPoint
	ErrEndpointNotSendable     = errspkg.ErrEndpointNotSendable
	ErrEndpointNotReceivable   = errspkg.ErrEndpointNotReceivable
	ErrReplyTimeout            = errspkg.ErrReplyTimeout
	ErrReceiveTimeout          = errspkg.ErrReceiveTimeout
	ErrRemoteSyncInTransaction = errspkg.ErrRemoteSyncInTransaction
	ErrAdapterDisposed         = errspkg.ErrAdapterDisposed
	ErrComponentNotStarted     = errspkg.ErrComponentNotStarted

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.Nop

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Metadata keys carried on the wire.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeySession       = metadatapkg.KeySession
	MetadataKeyRemoteSync    = metadatapkg.KeyRemoteSync
	MetadataKeyReplyTo       = metadatapkg.KeyReplyTo
	MetadataKeyMethod        = metadatapkg.KeyMethod
	MetadataKeyEncoding      = metadatapkg.KeyEncoding
	MetadataKeyException     = metadatapkg.KeyException
)

// Endpoint URI parameters.
const (
	ParamRemoteSync        = uripkg.ParamRemoteSync
	ParamRemoteSyncTimeout = uripkg.ParamRemoteSyncTimeout
	ParamEncoding          = uripkg.ParamEncoding
	ParamStreaming         = uripkg.ParamStreaming
	ParamDirection         = uripkg.ParamDirection
	ParamTransport         = uripkg.ParamTransport
)

// CloudEvents extension keys set on dead-letter envelopes.
const (
	ExtDeadLetter     = ce.ExtDeadLetter
	ExtComponent      = ce.ExtComponent
	ExtOriginEndpoint = ce.ExtOriginEndpoint
	ExtErrorMessage   = ce.ExtErrorMessage
	ExtErrorType      = ce.ExtErrorType
	ExtCorrelationID  = ce.ExtCorrelationID
	ExtSessionID      = ce.ExtSessionID

	TypeDeadLetter = ce.TypeDeadLetter
)

// SetOwnershipChecks turns the bind/seal access assertions on or off.
func SetOwnershipChecks(enabled bool) {
	ownershippkg.SetChecksEnabled(enabled)
}
