package call

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	lifecycleQueue   = 128
	lifecycleTimeout = 10 * time.Second
)

// callLog is the store reference of one session. Only the lifecycle worker touches id.
type callLog struct {
	id core.CallLogID
}

// lifecycle writes call logs and analytics off the call path, in order.
// Failures are logged and dropped.
type lifecycle struct {
	logs      core.CallLogStore
	analytics core.AnalyticsSink

	jobs chan func(context.Context)
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newLifecycle(logs core.CallLogStore, analytics core.AnalyticsSink) *lifecycle {
	l := &lifecycle{
		logs:      logs,
		analytics: analytics,
		jobs:      make(chan func(context.Context), lifecycleQueue),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *lifecycle) run() {
	defer close(l.done)
	for {
		select {
		case job := <-l.jobs:
			l.exec(job)
		case <-l.quit:
			for {
				select {
				case job := <-l.jobs:
					l.exec(job)
				default:
					return
				}
			}
		}
	}
}

func (l *lifecycle) exec(job func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	job(ctx)
}

func (l *lifecycle) enqueue(what string, job func(context.Context)) {
	select {
	case <-l.quit:
		return
	default:
	}
	select {
	case l.jobs <- job:
	default:
		log.Warn().Str("module", "call.lifecycle").Str("job", what).Msg("lifecycle queue full, dropping")
	}
}

// open creates the log record for cl and applies the first update.
func (l *lifecycle) open(cl *callLog, sid domain.SessionID, ct domain.CallType, participants []domain.UserID, first core.CallLogUpdate) {
	if l.logs == nil || cl == nil {
		return
	}
	l.enqueue("create_log", func(ctx context.Context) {
		id, err := l.logs.CreateLog(ctx, ct, participants)
		if err != nil {
			log.Warn().Str("module", "call.lifecycle").Str("sid", string(sid)).Err(err).Msg("create call log failed")
			return
		}
		cl.id = id
		if err := l.logs.UpdateLog(ctx, id, first); err != nil {
			log.Warn().Str("module", "call.lifecycle").Str("sid", string(sid)).Str("log", string(id)).Err(err).Msg("update call log failed")
		}
	})
}

func (l *lifecycle) update(cl *callLog, sid domain.SessionID, upd core.CallLogUpdate) {
	if l.logs == nil || cl == nil {
		return
	}
	l.enqueue("update_log", func(ctx context.Context) {
		if cl.id == "" {
			log.Debug().Str("module", "call.lifecycle").Str("sid", string(sid)).Str("status", string(upd.Status)).Msg("no call log, skipping update")
			return
		}
		if err := l.logs.UpdateLog(ctx, cl.id, upd); err != nil {
			log.Warn().Str("module", "call.lifecycle").Str("sid", string(sid)).Str("log", string(cl.id)).Err(err).Msg("update call log failed")
		}
	})
}

func (l *lifecycle) record(ev core.AnalyticsEvent, payload map[string]any) {
	if l.analytics == nil {
		return
	}
	l.enqueue(string(ev), func(ctx context.Context) {
		l.analytics.Record(ctx, ev, payload)
	})
}

// close stops accepting work and waits for queued jobs.
func (l *lifecycle) close() {
	l.once.Do(func() { close(l.quit) })
	<-l.done
}
