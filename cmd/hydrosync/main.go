package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/limbo/hydrosync/internal/auth"
	"github.com/limbo/hydrosync/internal/cli"
	"github.com/limbo/hydrosync/internal/localstore"
	"github.com/limbo/hydrosync/internal/metrics"
	"github.com/limbo/hydrosync/internal/reminder"
	"github.com/limbo/hydrosync/internal/repository"
	"github.com/limbo/hydrosync/internal/service"
	"github.com/limbo/hydrosync/pkg/cleanup"
	"github.com/limbo/hydrosync/pkg/config"
	jwtservice "github.com/limbo/hydrosync/pkg/jwt_service"
	"github.com/limbo/hydrosync/pkg/logger"
)

type commands struct {
	Version kong.VersionFlag
	Env     string `help:"Path of an optional .env file." default:"./configs/.env" type:"path"`

	Status        cli.StatusCmd        `cmd:"" help:"Show today's progress." default:"1"`
	Drink         cli.DrinkCmd         `cmd:"" help:"Log a drink."`
	Logs          cli.LogsCmd          `cmd:"" help:"List drink logs."`
	DeleteLog     cli.DeleteLogCmd     `cmd:"" help:"Delete a drink log."`
	Set           cli.SetCmd           `cmd:"" help:"Change a profile field."`
	Onboard       cli.OnboardCmd       `cmd:"" help:"Answer the onboarding questions and compute a daily goal."`
	Signin        cli.SignInCmd        `cmd:"" help:"Sign in and merge local data with the account."`
	Signup        cli.SignUpCmd        `cmd:"" help:"Create an account from the local data."`
	Signout       cli.SignOutCmd       `cmd:"" help:"Sign out and continue on this device only."`
	Sync          cli.SyncCmd          `cmd:"" help:"Push pending local changes to the account."`
	Passwd        cli.PasswdCmd        `cmd:"" help:"Change the account password."`
	DeleteAccount cli.DeleteAccountCmd `cmd:"" help:"Delete the account and all of its remote data."`
	Reset         cli.ResetCmd         `cmd:"" help:"Wipe the data kept on this device."`
	Reminders     cli.RemindersCmd     `cmd:"" help:"Show or run today's reminders."`
	Migrate       cli.MigrateCmd       `cmd:"" help:"Apply remote database migrations."`
}

func newParser(cmds *commands, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("hydrosync"),
		kong.Description("Offline-first hydration tracker"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{"version": "v0.1.0"},
	}, options...)
	return kong.New(cmds, options...)
}

func main() {
	var cmds commands
	parser, err := newParser(&cmds)
	if err != nil {
		panic(err)
	}
	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	cfg, err := config.Load(cmds.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log, logFile, err := logger.New(logger.Config{Debug: cfg.Debug, DataDir: cfg.DataDir})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(log)
	cleanup.Register(&cleanup.Job{Name: "closing log file", F: logFile.Close})

	err = run(kctx, cfg, log)
	cleanup.CleanUp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	local := localstore.New(cfg.LocalDBPath(), log)
	if err := local.Init(); err != nil {
		return err
	}
	cleanup.Register(&cleanup.Job{Name: "closing local store", F: local.Close})

	collector := metrics.NewCollector("")
	cleanup.Register(&cleanup.Job{Name: "writing metrics", F: func() error {
		return collector.WriteTextfile(filepath.Join(cfg.DataDir, "hydrosync.prom"))
	}})
	pool, err := repository.NewPool(ctx, &repository.PGCfg{
		Address:  cfg.Postgres.Address,
		Username: cfg.Postgres.Username,
		Password: cfg.Postgres.Password,
		DB:       cfg.Postgres.DB,
	}, log)
	if err != nil {
		return err
	}

	authService := auth.New(
		repository.NewAccountsRepoWithConn(pool),
		jwtservice.New(cfg.JWTSecret),
		auth.NewKeyringSessions(cfg.Profile),
		auth.Options{Logger: log, RecentLoginWindow: cfg.RecentLogin},
	)
	if cfg.RemoteEnabled() {
		if err := authService.Restore(ctx); err != nil {
			log.Warn("can't restore saved session", slog.String("error", err.Error()))
		}
	}

	scheduler := reminder.New(func(n reminder.Notification) {
		fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", n.Kind, n.Title, n.Body)
	}, reminder.Options{Metrics: collector, Logger: log})
	cleanup.Register(&cleanup.Job{Name: "stopping reminders", F: func() error {
		scheduler.Stop()
		return nil
	}})

	hydration := service.NewHydrationService(local, repository.NewRemoteStore(pool, authService), authService, service.Options{
		Notifier: scheduler,
		Metrics:  collector,
		Logger:   log,
	})
	cleanup.Register(&cleanup.Job{Name: "closing hydration service", F: func() error {
		hydration.Close()
		return nil
	}})
	if err := hydration.Start(ctx); err != nil {
		return err
	}

	return kctx.Run(&cli.Context{
		Ctx:       ctx,
		Config:    cfg,
		Hydration: hydration,
		Accounts:  service.NewAccountService(hydration),
		Reminders: scheduler,
		Metrics:   collector,
		Out:       os.Stdout,
	})
}
