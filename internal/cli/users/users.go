package users

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/julianstephens/habitus/internal/auth"
	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/models"
	"github.com/julianstephens/habitus/internal/storage"
)

type UserCmd struct {
	Register RegisterCmd `cmd:"" help:"Create a user account."`
	Login    LoginCmd    `cmd:"" help:"Act as a user in later commands."`
	Logout   LogoutCmd   `cmd:"" help:"Return to the default user."`
	Whoami   WhoamiCmd   `cmd:"" help:"Show the acting user."`
	List     ListCmd     `cmd:"" help:"List users."`
	Disable  DisableCmd  `cmd:"" help:"Disable a user without deleting data."`
	Enable   EnableCmd   `cmd:"" help:"Re-enable a disabled user."`
	Delete   DeleteCmd   `cmd:"" help:"Delete a user with all of their habits and scores."`
}

// lookup finds a user by email or returns ErrNotFound.
func lookup(ctx *cli.Context, s *storage.Store, email string) (models.User, error) {
	u, found, err := s.GetUserByEmail(ctx.Ctx, strings.TrimSpace(email))
	if err != nil {
		return models.User{}, err
	}
	if !found {
		return models.User{}, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	return u, nil
}

type RegisterCmd struct {
	Email      string `arg:"" help:"Email address of the new user."`
	NoPassword bool   `help:"Create the user without a password."`
	Login      bool   `help:"Log in as the new user afterwards."`
}

func (c *RegisterCmd) Run(ctx *cli.Context) error {
	var hash string
	if !c.NoPassword {
		pw, err := ctx.Password("Password: ")
		if err != nil {
			return err
		}
		again, err := ctx.Password("Confirm password: ")
		if err != nil {
			return err
		}
		if pw != again {
			return errors.New("passwords do not match")
		}
		if hash, err = auth.HashPassword(pw); err != nil {
			return err
		}
	}

	var id int64
	err := ctx.Use(func(s *storage.Store) error {
		var err error
		id, err = s.CreateUser(ctx.Ctx, c.Email, hash)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrConstraintViolation) {
			return fmt.Errorf("a user with email %s already exists", strings.TrimSpace(c.Email))
		}
		return err
	}
	ctx.Success("Registered %s (id %d)", strings.TrimSpace(c.Email), id)

	if c.Login {
		if err := ctx.Sessions.Save(id); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		ctx.Success("Logged in as %s", strings.TrimSpace(c.Email))
	}
	return nil
}

type LoginCmd struct {
	Email string `arg:"" help:"Email address to log in as."`
}

func (c *LoginCmd) Run(ctx *cli.Context) error {
	var u models.User
	err := ctx.Use(func(s *storage.Store) error {
		var err error
		u, err = lookup(ctx, s, c.Email)
		return err
	})
	if err != nil {
		return err
	}
	if !u.Active {
		return fmt.Errorf("user %s is disabled", u.Email)
	}
	if u.PasswordHash != "" {
		pw, err := ctx.Password("Password: ")
		if err != nil {
			return err
		}
		if err := auth.CheckPassword(u.PasswordHash, pw); err != nil {
			return errors.New("invalid email or password")
		}
	}
	if err := ctx.Sessions.Save(u.ID); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	ctx.Success("Logged in as %s", u.Email)
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *cli.Context) error {
	if err := ctx.Sessions.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	ctx.Success("Logged out; commands now act as %s", constants.DefaultUserEmail)
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		id, err := s.ActingUser(ctx.Ctx)
		if err != nil {
			return err
		}
		u, found, err := s.GetUserByID(ctx.Ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("acting user %d: %w", id, storage.ErrNotFound)
		}
		ctx.Printf("%s (id %d)\n", u.Email, u.ID)
		return nil
	})
}

type ListCmd struct{}

func (c *ListCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		acting, err := s.ActingUser(ctx.Ctx)
		if err != nil {
			return err
		}
		users, err := s.ListUsers(ctx.Ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tEMAIL\tSTATUS\tCREATED")
		for _, u := range users {
			marker := ""
			if u.ID == acting {
				marker = "*"
			}
			status := "active"
			if !u.Active {
				status = "disabled"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", marker, u.ID, u.Email, status, u.CreatedAt.Local().Format("2006-01-02"))
		}
		return w.Flush()
	})
}

type DisableCmd struct {
	Email string `arg:"" help:"Email address of the user."`
}

func (c *DisableCmd) Run(ctx *cli.Context) error {
	return setActive(ctx, c.Email, false)
}

type EnableCmd struct {
	Email string `arg:"" help:"Email address of the user."`
}

func (c *EnableCmd) Run(ctx *cli.Context) error {
	return setActive(ctx, c.Email, true)
}

func setActive(ctx *cli.Context, email string, active bool) error {
	return ctx.Use(func(s *storage.Store) error {
		u, err := lookup(ctx, s, email)
		if err != nil {
			return err
		}
		if _, err := s.SetUserActive(ctx.Ctx, u.ID, active); err != nil {
			return err
		}
		if active {
			ctx.Success("Enabled %s", u.Email)
		} else {
			ctx.Success("Disabled %s", u.Email)
		}
		return nil
	})
}

type DeleteCmd struct {
	Email string `arg:"" help:"Email address of the user."`
	Yes   bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *DeleteCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		u, err := lookup(ctx, s, c.Email)
		if err != nil {
			return err
		}
		if err := ctx.Confirmed(fmt.Sprintf("Delete %s and all of their habits and scores?", u.Email), c.Yes); err != nil {
			return err
		}
		deleted, err := s.DeleteUserCascade(ctx.Ctx, u.ID)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("user %s: %w", u.Email, storage.ErrNotFound)
		}

		if id, ok, err := ctx.Sessions.Load(); err == nil && ok && id == u.ID {
			if err := ctx.Sessions.Clear(); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
		}
		ctx.Success("Deleted %s", u.Email)
		return nil
	})
}
