package loan

import (
	"time"

	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"github.com/warp/loan-engine/lock"
)

// =============================================================================
// ENGINE - Wires the services over one store
// =============================================================================

// Engine groups the lifecycle and ledger services that share a store,
// a clock, and a lock.
type Engine struct {
	Counsels     *CounselService
	Applications *ApplicationService
	Terms        *TermsService
	Judgments    *JudgmentService
	Balances     *BalanceLedger
	Entries      *EntryService
	Repayments   *RepaymentService
}

type options struct {
	log        *zap.Logger
	locker     Locker
	now        func() time.Time
	maxRetries int
	retryDelay time.Duration
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option { return func(o *options) { o.log = log } }

// WithLocker replaces the default in-process lock, e.g. with lock.Redis.
func WithLocker(l Locker) Option { return func(o *options) { o.locker = l } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithRetry bounds how often a balance mutation is re-run after losing a
// version check.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxRetries
		o.retryDelay = delay
	}
}

func NewEngine(store TxStore, opts ...Option) *Engine {
	o := options{
		log:        zap.NewNop(),
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: 3,
		retryDelay: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locker == nil {
		o.locker = lock.NewLocal()
	}
	if o.retryDelay <= 0 {
		o.retryDelay = time.Millisecond
	}

	retry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool { return IsRetryable(err) }).
		WithMaxRetries(o.maxRetries).
		WithBackoff(o.retryDelay, 20*o.retryDelay).
		WithJitterFactor(0.1).
		Build()

	ledger := &BalanceLedger{
		store:  store,
		locker: o.locker,
		retry:  retry,
		log:    o.log.Named("ledger"),
		now:    o.now,
	}

	return &Engine{
		Counsels:     &CounselService{store: store, now: o.now},
		Applications: &ApplicationService{store: store, log: o.log.Named("application"), now: o.now},
		Terms:        &TermsService{store: store, now: o.now},
		Judgments:    &JudgmentService{store: store, log: o.log.Named("judgment"), now: o.now},
		Balances:     ledger,
		Entries:      &EntryService{ledger: ledger},
		Repayments:   &RepaymentService{ledger: ledger},
	}
}
