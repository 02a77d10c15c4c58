package datasource

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProgressListener receives coarse progress while a file is ingested.
// Begin is called at most once, before any Progress call; Progress
// values are non-decreasing; End is called exactly once when the pass
// finishes, on the failure path as well as on success.
type ProgressListener interface {
	// Begin announces the start of a pass. total is the expected
	// number of features, or -1 when the format cannot say cheaply.
	Begin(total int)
	// Progress reports the number of features handled so far.
	Progress(done int)
	// End announces that the pass is over, successful or not.
	End()
}

// NoopProgressListener ignores every notification.
type NoopProgressListener struct{}

func (NoopProgressListener) Begin(int)    {}
func (NoopProgressListener) Progress(int) {}
func (NoopProgressListener) End()         {}

// LogProgressListener reports progress through the global zap logger.
// Progress lines are throttled so large files do not flood the log.
type LogProgressListener struct {
	name    string
	total   int
	started time.Time
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewLogProgressListener returns a listener logging under the given
// dataset name.
func NewLogProgressListener(name string) *LogProgressListener {
	return &LogProgressListener{
		name:    name,
		total:   -1,
		started: time.Now(),
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:     zap.L().With(zap.String("component", "datasource.progress")),
	}
}

func (l *LogProgressListener) Begin(total int) {
	l.total = total
	l.started = time.Now()
	l.log.Info("datasource: ingest started",
		zap.String("name", l.name),
		zap.Int("total", total),
	)
}

func (l *LogProgressListener) Progress(done int) {
	if !l.limiter.Allow() {
		return
	}
	l.log.Debug("datasource: ingest progress",
		zap.String("name", l.name),
		zap.Int("done", done),
		zap.Int("total", l.total),
	)
}

func (l *LogProgressListener) End() {
	l.log.Info("datasource: ingest finished",
		zap.String("name", l.name),
		zap.Duration("elapsed", time.Since(l.started)),
	)
}
