package sessionauth

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/sessionauth/internal/audit"
	"github.com/MrEthical07/sessionauth/internal/rate"
	"github.com/MrEthical07/sessionauth/jwt"
	"github.com/MrEthical07/sessionauth/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, then discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users     UserStore
	auditSink AuditSink
	logger    *zerolog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the shared store client. A *redis.Client,
// *redis.ClusterClient or failover client all work: refresh keys are
// hash-tagged by subject, so each store script stays within one slot.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the identity lookup used by login and refresh.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

// WithLogger sets the operational logger. Without it the engine logs
// nothing.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithAuditSink sets the audit destination and enables the dispatcher.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithClock overrides the time source for token issuance and
// verification. Tests use it together with miniredis FastForward.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login and authenticate histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can
// be built once.
//
// If the [UserStore] also implements DummyHash() string, that hash is
// verified when an email is unknown so that timing does not reveal
// whether an account exists.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.JWT.SigningMethod)),
		ActiveKeyID:   cfg.JWT.ActiveKeyID,
		SigningKeys:   cloneKeyMap(cfg.JWT.SigningKeys),
		VerifyKeys:    cloneKeyMap(cfg.JWT.PublicKeys),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           b.clock,
	})
	if err != nil {
		return nil, err
	}

	store := deadlineStore{
		store:   session.NewStore(b.redis, cfg.Store.KeyPrefix),
		timeout: cfg.Store.OperationTimeout,
	}

	engine := &Engine{
		config:     cfg,
		store:      store,
		jwtManager: jm,
		users:      b.users,
		metrics:    NewMetrics(cfg.Metrics),
		logger:     zerolog.Nop(),
	}
	if b.logger != nil {
		engine.logger = b.logger.With().Str("component", "sessionauth").Logger()
	}
	if dh, ok := b.users.(interface{ DummyHash() string }); ok {
		engine.dummyHash = dh.DummyHash()
	}

	engine.guard = rate.NewGuard(store, rate.Config{
		MaxLoginAttempts: cfg.Lockout.MaxLoginAttempts,
		MaxIPAttempts:    cfg.Lockout.MaxIPAttempts,
		LockoutDuration:  cfg.Lockout.LockoutDuration,
	})
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   criticalAuditEvents,
	}, b.auditSink)
	engine.flowDeps = engine.buildFlowDeps()

	b.built = true
	return engine, nil
}
