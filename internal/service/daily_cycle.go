package service

import (
	"math"

	"github.com/limbo/hydrosync/pkg/entity"
)

const (
	mlPerKg               = 35
	highActivityBonus     = 500
	moderateActivityBonus = 250
	hotClimateBonus       = 500
	goalStep              = 50

	// share of the goal that counts as reached, in percent
	goalReachedPercent = 95
)

// ReconcileDailyCycle starts a new day on p when its intake belongs to an earlier date.
func ReconcileDailyCycle(p entity.Profile, today string) entity.Profile {
	if p.LastResetDate == today {
		return p
	}
	p.DailyIntake = 0
	p.LastResetDate = today
	return p
}

// DailyIntakeFor sums the volume of logs dated date.
func DailyIntakeFor(logs []entity.DrinkLog, date string) int {
	total := 0
	for _, l := range logs {
		if l.Date == date {
			total += l.Volume
		}
	}
	return total
}

// RecommendedDailyGoal estimates a goal in ml from body weight, activity and climate.
func RecommendedDailyGoal(weight float64, activityLevel, climate string) int {
	if weight <= 0 {
		return entity.DefaultDailyGoal
	}
	goal := weight * mlPerKg
	switch activityLevel {
	case ActivityHigh:
		goal += highActivityBonus
	case ActivityModerate:
		goal += moderateActivityBonus
	}
	if climate == ClimateHot {
		goal += hotClimateBonus
	}
	return int(math.Round(goal/goalStep)) * goalStep
}

func goalReached(p entity.Profile) bool {
	return p.DailyGoal > 0 && p.DailyIntake*100 >= p.DailyGoal*goalReachedPercent
}
