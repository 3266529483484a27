package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/limbo/hydrosync/internal/service"
	"github.com/limbo/hydrosync/pkg/entity"
)

type StatusCmd struct {
	Metrics bool `help:"Also print the sync metrics of this run in Prometheus text format."`
}

func (c *StatusCmd) Run(ctx *Context) error {
	p, ok := ctx.Hydration.Profile()
	if !ok {
		return fmt.Errorf("no profile loaded")
	}
	flags := ctx.Hydration.Flags()
	ctx.printf("State:    %s\n", ctx.Hydration.State())
	if identity, ok := ctx.Hydration.Session(); ok {
		ctx.printf("Account:  %s\n", identity.Email)
	}
	ctx.printf("Today:    %d / %d ml (%d%%)\n", p.DailyIntake, p.DailyGoal, percent(p))
	ctx.printf("Cup:      %d ml\n", p.CupSize)
	ctx.printf("Schedule: %s - %s\n", p.WakeUpTime, p.BedTime)
	if !p.IsCompleted {
		ctx.printf("Onboarding not completed, run `hydrosync onboard`\n")
	}
	if flags.PendingSync {
		ctx.printf("Local changes are waiting to be synced\n")
	}
	if c.Metrics {
		ctx.printf("\n")
		return ctx.Metrics.WriteText(ctx.Out)
	}
	return nil
}

func percent(p entity.Profile) int {
	if p.DailyGoal <= 0 {
		return 0
	}
	return p.DailyIntake * 100 / p.DailyGoal
}

type DrinkCmd struct {
	Volume int    `arg:"" optional:"" help:"Volume in ml, defaults to the cup size."`
	Type   string `short:"t" help:"Drink type." default:"water"`
	Date   string `short:"d" help:"Date (YYYY-MM-DD), defaults to today."`
	At     string `short:"a" help:"Time (HH:MM:SS), defaults to now."`
	Cup    string `help:"Id of the cup preset used."`
}

func (c *DrinkCmd) Run(ctx *Context) error {
	volume := c.Volume
	if volume == 0 {
		p, ok := ctx.Hydration.Profile()
		if !ok {
			return fmt.Errorf("no profile loaded")
		}
		volume = p.CupSize
	}
	l, err := ctx.Hydration.AddLog(ctx.Ctx, service.NewDrinkLog{
		Volume:       volume,
		DrinkType:    c.Type,
		DefaultCupID: c.Cup,
		Date:         c.Date,
		Time:         c.At,
	})
	if err != nil {
		return err
	}
	p, _ := ctx.Hydration.Profile()
	ctx.printf("Logged %d ml of %s (%s). Today: %d / %d ml\n", l.Volume, l.DrinkType, l.ID, p.DailyIntake, p.DailyGoal)
	return nil
}

type LogsCmd struct {
	Date string `short:"d" help:"Only show logs of this date (YYYY-MM-DD)."`
}

func (c *LogsCmd) Run(ctx *Context) error {
	var logs []entity.DrinkLog
	if c.Date != "" {
		logs = ctx.Hydration.LogsForDate(c.Date)
	} else {
		logs = ctx.Hydration.Logs()
	}
	if len(logs) == 0 {
		ctx.printf("No logs\n")
		return nil
	}
	w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIME\tVOLUME\tTYPE\tID")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", l.Date, l.Time, l.Volume, l.DrinkType, l.ID)
	}
	return w.Flush()
}

type DeleteLogCmd struct {
	ID string `arg:"" help:"Log id."`
}

func (c *DeleteLogCmd) Run(ctx *Context) error {
	if err := ctx.Hydration.DeleteLog(ctx.Ctx, c.ID); err != nil {
		return err
	}
	ctx.printf("Deleted %s\n", c.ID)
	return nil
}

type SetCmd struct {
	Field string `arg:"" help:"Profile field (name, gender, height, weight, age, wakeUpTime, bedTime, activityLevel, climate, dailyGoal, cupSize, isCompleted)."`
	Value string `arg:"" help:"New value."`
}

func (c *SetCmd) Run(ctx *Context) error {
	field := service.ProfileField(c.Field)
	value, err := service.ParseFieldValue(field, c.Value)
	if err != nil {
		return err
	}
	if err := ctx.Hydration.UpdateField(ctx.Ctx, field, value); err != nil {
		return err
	}
	ctx.printf("%s updated\n", c.Field)
	return nil
}

type OnboardCmd struct {
	Name     string  `help:"Your name."`
	Gender   string  `help:"male, female or other."`
	Height   float64 `help:"Height in cm."`
	Weight   float64 `help:"Weight in kg." required:""`
	Age      int     `help:"Age in years."`
	Wake     string  `help:"Wake-up time (HH:MM)." default:"07:00"`
	Bed      string  `help:"Bed time (HH:MM)." default:"23:00"`
	Activity string  `help:"Activity level (low|moderate|high)." default:"moderate"`
	Climate  string  `help:"Climate (cold|temperate|hot)." default:"temperate"`
	Goal     int     `help:"Daily goal in ml, computed from the answers when omitted."`
	Cup      int     `help:"Cup size in ml."`
}

func (c *OnboardCmd) Run(ctx *Context) error {
	p, err := ctx.Hydration.CompleteOnboarding(ctx.Ctx, service.OnboardingAnswers{
		Name:          c.Name,
		Gender:        c.Gender,
		Height:        c.Height,
		Weight:        c.Weight,
		Age:           c.Age,
		WakeUpTime:    c.Wake,
		BedTime:       c.Bed,
		ActivityLevel: c.Activity,
		Climate:       c.Climate,
		DailyGoal:     c.Goal,
		CupSize:       c.Cup,
	})
	if err != nil {
		return err
	}
	ctx.printf("Daily goal set to %d ml\n", p.DailyGoal)
	return nil
}
