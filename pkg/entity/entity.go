package entity

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DateFormat  = "2006-01-02"
	TimeFormat  = "15:04:05"
	ClockFormat = "15:04"

	LocalLogPrefix  = "local_"
	LocalUserPrefix = "device_"

	DefaultDailyGoal     = 2000
	DefaultCupSize       = 250
	DefaultWakeUpTime    = "07:00"
	DefaultBedTime       = "23:00"
	DefaultActivityLevel = "moderate"
	DefaultClimate       = "temperate"
)

type Profile struct {
	UserID        string  `json:"userId"`
	Name          string  `json:"name"`
	Gender        string  `json:"gender"`
	Height        float64 `json:"height"`
	Weight        float64 `json:"weight"`
	Age           int     `json:"age"`
	WakeUpTime    string  `json:"wakeUpTime"`
	BedTime       string  `json:"bedTime"`
	ActivityLevel string  `json:"activityLevel"`
	Climate       string  `json:"climate"`
	DailyGoal     int     `json:"dailyGoal"`
	DailyIntake   int     `json:"dailyIntake"`
	LastResetDate string  `json:"lastResetDate"`
	IsCompleted   bool    `json:"isCompleted"`
	CupSize       int     `json:"cupSize"`
}

// DefaultProfile is the profile a user starts with before onboarding.
func DefaultProfile(userID, today string) Profile {
	return Profile{
		UserID:        userID,
		WakeUpTime:    DefaultWakeUpTime,
		BedTime:       DefaultBedTime,
		ActivityLevel: DefaultActivityLevel,
		Climate:       DefaultClimate,
		DailyGoal:     DefaultDailyGoal,
		LastResetDate: today,
		CupSize:       DefaultCupSize,
	}
}

type DrinkLog struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Volume       int    `json:"volume"`
	DrinkType    string `json:"drinkType"`
	DefaultCupID string `json:"defaultCupId,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// Fingerprint is the content key used to match logs when ids can't be trusted.
type Fingerprint struct {
	Date      string
	Time      string
	Volume    int
	DrinkType string
}

func (l DrinkLog) Fingerprint() Fingerprint {
	return Fingerprint{
		Date:      l.Date,
		Time:      l.Time,
		Volume:    l.Volume,
		DrinkType: l.DrinkType,
	}
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%s %s %dml %s", f.Date, f.Time, f.Volume, f.DrinkType)
}

func NewLocalLogID(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", LocalLogPrefix, now.UnixMilli(), uuid.NewString()[:8])
}

// IsLocalID reports whether a log id was generated on the device and never confirmed by the remote store.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalLogPrefix)
}

func NewLocalUserID() string {
	return LocalUserPrefix + uuid.NewString()
}

func IsLocalUserID(uid string) bool {
	return strings.HasPrefix(uid, LocalUserPrefix)
}

// SortDrinkLogs orders logs newest first: date, then time, then creation moment.
func SortDrinkLogs(logs []DrinkLog) {
	slices.SortStableFunc(logs, func(a, b DrinkLog) int {
		if c := cmp.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Time, a.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
}

// PendingDelete is a remote log whose deletion the remote store hasn't confirmed yet.
type PendingDelete struct {
	LogID  string `json:"logId"`
	UserID string `json:"userId"`
}

type SyncFlags struct {
	IsRegistered      bool `json:"isRegistered"`
	PendingSync       bool `json:"pendingSync"`
	HasSeenOnboarding bool `json:"hasSeenOnboarding"`
}

// Identity is an authenticated user as seen by the auth provider.
type Identity struct {
	UserID   string
	Email    string
	IssuedAt time.Time
}

type Account struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
