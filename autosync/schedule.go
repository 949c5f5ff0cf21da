package autosync

import (
	"context"
	"time"

	"github.com/mmdatafocus/autosync_backend/config"
	"github.com/mmdatafocus/autosync_backend/utils"
	"github.com/sirupsen/logrus"
)

// Schedule is a tenant's resolved closure schedule.
// A tenant without a ScheduleConfig row gets a disabled schedule in the default timezone.
type Schedule struct {
	Configured       bool
	AutoCloseEnabled bool
	CloseHour        int
	CloseMinute      int
	Location         *time.Location
}

// ResolveSchedule loads the tenant's schedule. An unknown timezone falls back to the default one.
func (e *Engine) ResolveSchedule(ctx context.Context, clientId string) (Schedule, error) {
	sched := Schedule{Location: e.defaultLocation}
	cfg, err := e.Store.GetScheduleConfig(ctx, clientId)
	if err != nil {
		return sched, err
	}
	if cfg == nil {
		return sched, nil
	}
	sched.Configured = true
	sched.AutoCloseEnabled = cfg.AutoCloseEnabled
	sched.CloseHour = cfg.CloseHour
	sched.CloseMinute = cfg.CloseMinute
	if cfg.Timezone != "" {
		loc, err := utils.LoadLocation(cfg.Timezone)
		if err != nil {
			e.Logger.WithFields(logrus.Fields{
				"field":     "ResolveSchedule",
				"client_id": clientId,
				"timezone":  cfg.Timezone,
			}).Warn("unknown tenant timezone, using default")
		} else {
			sched.Location = loc
		}
	}
	return sched, nil
}

// ClosureDue reports whether now, in the tenant's timezone, is exactly the configured close minute.
func (s Schedule) ClosureDue(now time.Time) bool {
	if !s.AutoCloseEnabled {
		return false
	}
	local := now.In(s.location())
	return local.Hour() == s.CloseHour && local.Minute() == s.CloseMinute
}

// Today is the tenant-local calendar date of now.
func (s Schedule) Today(now time.Time) time.Time {
	return utils.ConvertToDate(now, s.location())
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func defaultLocation(cfg config.AutoSyncConfig) *time.Location {
	loc, err := utils.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
