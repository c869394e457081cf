package models

import "time"

// Settings are the user preferences the engine consumes. UI-only prefs are
// carried through unchanged so every surface shares one settings blob.
type Settings struct {
	AutoPauseAfterMinutes int  `json:"auto_pause_after_minutes"`
	NotifyAfterMinutes    int  `json:"notify_after_minutes"`
	AutoStartDay          bool `json:"auto_start_day"`
	EndOfDayHour          int  `json:"end_of_day_hour"`
	ShowCompletedTasks    bool `json:"show_completed_tasks"`
}

func DefaultSettings() Settings {
	return Settings{
		AutoPauseAfterMinutes: 30,
		NotifyAfterMinutes:    5,
		AutoStartDay:          true,
		EndOfDayHour:          16,
		ShowCompletedTasks:    true,
	}
}

// AutoPauseThreshold is the inactivity gap after which the active task is
// force-paused.
func (s Settings) AutoPauseThreshold() time.Duration {
	return time.Duration(s.AutoPauseAfterMinutes) * time.Minute
}

// NotifyThreshold is the inactivity gap above which an auto-pause also
// surfaces a user-visible notification.
func (s Settings) NotifyThreshold() time.Duration {
	return time.Duration(s.NotifyAfterMinutes) * time.Minute
}
