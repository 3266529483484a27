package cli

import (
	"database/sql"
	"fmt"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose"

	"github.com/limbo/hydrosync/internal/repository"
	"github.com/limbo/hydrosync/pkg/config"
)

type RemindersCmd struct {
	Watch bool `short:"w" help:"Keep running and deliver reminders until interrupted."`
}

func (c *RemindersCmd) Run(ctx *Context) error {
	if p, ok := ctx.Hydration.Profile(); ok {
		ctx.Reminders.ProfileChanged(p)
	}
	planned := ctx.Reminders.Planned()
	if len(planned) == 0 {
		ctx.printf("No reminders, complete onboarding first\n")
		return nil
	}
	for _, r := range planned {
		ctx.printf("%s  %d ml\n", r.Clock, r.Volume)
	}
	if !c.Watch {
		return nil
	}
	runCtx, stop := signal.NotifyContext(ctx.Ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx.Reminders.Start()
	defer ctx.Reminders.Stop()
	ctx.printf("Waiting for reminders, press Ctrl+C to stop\n")
	<-runCtx.Done()
	return nil
}

type MigrateCmd struct {
	Down bool   `help:"Roll back the latest migration."`
	Dir  string `help:"Migrations directory, overrides HYDROSYNC_MIGRATIONS_DIR." type:"path"`
}

func (c *MigrateCmd) dir(cfg *config.Config) string {
	if c.Dir != "" {
		return c.Dir
	}
	return cfg.MigrationsDir
}

func (c *MigrateCmd) Run(ctx *Context) error {
	if err := ctx.requireRemote(); err != nil {
		return err
	}
	pg := ctx.Config.Postgres
	cfg := repository.PGCfg{
		Address:  pg.Address,
		Username: pg.Username,
		Password: pg.Password,
		DB:       pg.DB,
	}
	db, err := sql.Open("pgx", cfg.ConnString())
	if err != nil {
		return fmt.Errorf("opening remote database: %w", err)
	}
	defer db.Close()
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	dir := c.dir(ctx.Config)
	if c.Down {
		err = goose.Down(db, dir)
	} else {
		err = goose.Up(db, dir)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	ctx.printf("Migrations applied from %s\n", dir)
	return nil
}
