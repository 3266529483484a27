package cli

import (
	"errors"
	"fmt"
)

type SignInCmd struct {
	Email    string `arg:"" help:"Account email."`
	Password string `help:"Account password." env:"HYDROSYNC_PASSWORD" required:""`
}

func (c *SignInCmd) Run(ctx *Context) error {
	if err := ctx.requireRemote(); err != nil {
		return err
	}
	if err := ctx.Hydration.SignIn(ctx.Ctx, c.Email, c.Password); err != nil {
		return err
	}
	ctx.printf("Signed in as %s\n", c.Email)
	return nil
}

type SignUpCmd struct {
	Email    string `arg:"" help:"Account email."`
	Password string `help:"Account password, at least 8 characters with letters and digits." env:"HYDROSYNC_PASSWORD" required:""`
}

func (c *SignUpCmd) Run(ctx *Context) error {
	if err := ctx.requireRemote(); err != nil {
		return err
	}
	if err := ctx.Hydration.SignUp(ctx.Ctx, c.Email, c.Password); err != nil {
		return err
	}
	ctx.printf("Account %s created, local data uploaded\n", c.Email)
	return nil
}

type SignOutCmd struct{}

func (c *SignOutCmd) Run(ctx *Context) error {
	if err := ctx.Hydration.SignOut(ctx.Ctx); err != nil {
		return err
	}
	ctx.printf("Signed out\n")
	return nil
}

type SyncCmd struct{}

func (c *SyncCmd) Run(ctx *Context) error {
	if err := ctx.requireRemote(); err != nil {
		return err
	}
	if err := ctx.Hydration.SyncToCloud(ctx.Ctx); err != nil {
		return err
	}
	ctx.printf("Synced\n")
	return nil
}

type PasswdCmd struct {
	Current string `help:"Current password." env:"HYDROSYNC_PASSWORD" required:""`
	New     string `help:"New password." env:"HYDROSYNC_NEW_PASSWORD" required:""`
}

func (c *PasswdCmd) Run(ctx *Context) error {
	if err := ctx.requireRemote(); err != nil {
		return err
	}
	if err := ctx.Accounts.ChangePassword(ctx.Ctx, c.Current, c.New); err != nil {
		return err
	}
	ctx.printf("Password changed\n")
	return nil
}

type DeleteAccountCmd struct {
	Password string `help:"Account password." env:"HYDROSYNC_PASSWORD" required:""`
	Yes      bool   `help:"Confirm the deletion."`
}

func (c *DeleteAccountCmd) Run(ctx *Context) error {
	if !c.Yes {
		return errors.New("account deletion removes all remote data, pass --yes to confirm")
	}
	if err := ctx.requireRemote(); err != nil {
		return err
	}
	if err := ctx.Accounts.DeleteAccount(ctx.Ctx, c.Password); err != nil {
		return fmt.Errorf("account not deleted: %w", err)
	}
	ctx.printf("Account deleted\n")
	return nil
}

type ResetCmd struct {
	Yes bool `help:"Confirm wiping local data."`
}

func (c *ResetCmd) Run(ctx *Context) error {
	if !c.Yes {
		return errors.New("reset wipes every log kept on this device, pass --yes to confirm")
	}
	if err := ctx.Accounts.ClearLocalData(ctx.Ctx); err != nil {
		return err
	}
	ctx.printf("Local data cleared\n")
	return nil
}
