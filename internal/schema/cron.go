package schema

import "time"

// CronJobSummary is a lightweight view of a scheduled job used by the cron tool.
type CronJobSummary struct {
	ID      string
	Kind    string // "fire_at" | "interval"
	Payload string
	Next    time.Time
}

// CronService is the interface the cron.once/cron.every tools use to reach
// the scheduler. Implemented by cron.Scheduler. Defined here to avoid an
// import cycle.
type CronService interface {
	AddFireAt(t time.Time, payload string) (id string, err error)
	AddInterval(d time.Duration, payload string) (id string, err error)
	AddCronExpr(expr string, payload string) (id string, err error)
	Remove(id string) bool
	List() []CronJobSummary
}
