package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/studymates/internal/application"
)

// ServiceFactory builds application services that share a deterministic clock and
// identifier sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

func (f *ServiceFactory) options(extra []application.Option) []application.Option {
	opts := make([]application.Option, 0, len(extra)+1)
	if f.Logger != nil {
		opts = append(opts, application.WithLogger(f.Logger))
	}
	return append(opts, extra...)
}

// Membership builds a membership service over store.
func (f *ServiceFactory) Membership(store application.Store, opts ...application.Option) *application.MembershipService {
	return application.NewMembershipService(store, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.options(opts)...)
}

// Sessions builds a session service over store.
func (f *ServiceFactory) Sessions(store application.Store, opts ...application.Option) *application.SessionService {
	return application.NewSessionService(store, f.Clock.NowFunc(), f.options(opts)...)
}

// Users builds a user service over store.
func (f *ServiceFactory) Users(store application.Store, opts ...application.Option) *application.UserService {
	return application.NewUserService(store, f.Clock.NowFunc(), f.options(opts)...)
}
