// Package cli holds the hydrosync subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/limbo/hydrosync/internal/metrics"
	"github.com/limbo/hydrosync/internal/reminder"
	"github.com/limbo/hydrosync/internal/service"
	"github.com/limbo/hydrosync/pkg/config"
)

var errRemoteDisabled = errors.New("remote store is not configured, set POSTGRES_USER and JWT_SECRET")

type Context struct {
	Ctx       context.Context
	Config    *config.Config
	Hydration *service.HydrationService
	Accounts  *service.AccountService
	Reminders *reminder.Scheduler
	Metrics   *metrics.Collector
	Out       io.Writer
}

func (c *Context) printf(format string, args ...any) {
	fmt.Fprintf(c.Out, format, args...)
}

func (c *Context) requireRemote() error {
	if c.Config != nil && !c.Config.RemoteEnabled() {
		return errRemoteDisabled
	}
	return nil
}
