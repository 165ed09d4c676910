package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/studymates/internal/geo"
)

// Defaults applied when callers or configuration leave a value unset.
const (
	DefaultMaxParticipants    = 6
	DefaultFocusDuration      = 25 * time.Minute
	DefaultBreakDuration      = 5 * time.Minute
	DefaultJoinRequestTTL     = time.Hour
	DefaultNearbyRadiusMeters = 500.0
	DefaultEmailDomain        = "unsw.edu.au"

	defaultDecisionLockTTL = 15 * time.Second
)

// Option configures optional collaborators and policies shared by the services.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger         *slog.Logger
	changes        ChangePublisher
	locker         Locker
	recorder       OperationRecorder
	joinRequestTTL time.Duration
	lockTTL        time.Duration
	nearbyRadius   float64
	emailDomain    string
	campus         geo.Bounds
}

func newServiceOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		joinRequestTTL: DefaultJoinRequestTTL,
		lockTTL:        defaultDecisionLockTTL,
		nearbyRadius:   DefaultNearbyRadiusMeters,
		emailDomain:    DefaultEmailDomain,
		campus:         geo.CampusUNSW,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = defaultLogger(o.logger)
	return o
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

// WithChangePublisher sets where committed changes are announced.
func WithChangePublisher(changes ChangePublisher) Option {
	return func(o *serviceOptions) { o.changes = changes }
}

// WithLocker sets the lock used to serialise decisions on one join request.
func WithLocker(locker Locker) Option {
	return func(o *serviceOptions) { o.locker = locker }
}

// WithRecorder sets the operation recorder.
func WithRecorder(recorder OperationRecorder) Option {
	return func(o *serviceOptions) { o.recorder = recorder }
}

// WithJoinRequestTTL overrides how long a join request stays pending.
func WithJoinRequestTTL(ttl time.Duration) Option {
	return func(o *serviceOptions) {
		if ttl > 0 {
			o.joinRequestTTL = ttl
		}
	}
}

// WithNearbyRadius overrides the default search radius in meters.
func WithNearbyRadius(meters float64) Option {
	return func(o *serviceOptions) {
		if meters > 0 {
			o.nearbyRadius = meters
		}
	}
}

// WithEmailDomain restricts profiles to addresses under domain.
func WithEmailDomain(domain string) Option {
	return func(o *serviceOptions) {
		if domain != "" {
			o.emailDomain = domain
		}
	}
}

// WithCampus overrides the campus bounds used to flag on-campus locations.
func WithCampus(bounds geo.Bounds) Option {
	return func(o *serviceOptions) { o.campus = bounds }
}

func (o serviceOptions) observe(operation string, started time.Time, err error) {
	if o.recorder == nil {
		return
	}
	o.recorder.ObserveOperation(operation, ErrorKind(err), time.Since(started))
}

// publish announces committed changes. Delivery is best effort; the store is the
// source of truth, so failures are logged and dropped.
func (o serviceOptions) publish(ctx context.Context, logger *slog.Logger, changes changeSet) {
	if o.changes == nil {
		return
	}
	for _, change := range changes {
		if err := o.changes.Publish(ctx, change); err != nil {
			logger.WarnContext(ctx, "failed to publish change",
				"table", change.Table,
				"record_id", change.RecordID,
				"error", err,
			)
		}
	}
}

type changeSet []Change

func (c *changeSet) add(table string, action ChangeAction, id string, record any, at time.Time, filters ...string) {
	change := Change{Table: table, Action: action, RecordID: id, Record: record, OccurredAt: at}
	if len(filters) > 1 {
		change.Filters = make(map[string]string, len(filters)/2)
		for i := 0; i+1 < len(filters); i += 2 {
			change.Filters[filters[i]] = filters[i+1]
		}
	}
	*c = append(*c, change)
}

func (c *changeSet) participant(action ChangeAction, p Participant, at time.Time) {
	c.add(TableParticipants, action, p.ID, p, at, "session_id", p.SessionID, "user_id", p.UserID)
}

func (c *changeSet) joinRequest(action ChangeAction, r JoinRequest, at time.Time) {
	c.add(TableJoinRequests, action, r.ID, r, at, "session_id", r.SessionID, "requester_id", r.RequesterID)
}

func (c *changeSet) session(action ChangeAction, s Session, at time.Time) {
	c.add(TableSessions, action, s.ID, s, at, "creator_id", s.CreatorID)
}

func (c *changeSet) user(u User, at time.Time) {
	c.add(TableUsers, ChangeUpdate, u.ID, u, at)
}

func (c *changeSet) currentSession(userID string, sessionID *string, at time.Time) {
	c.add(TableUsers, ChangeUpdate, userID, map[string]any{"current_session_id": sessionID}, at)
}
