package habits

import (
	"fmt"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/constants"
	"github.com/julianstephens/habitus/internal/models"
	"github.com/julianstephens/habitus/internal/storage"
)

type HabitCmd struct {
	Add        AddCmd        `cmd:"" help:"Add a new habit."`
	List       ListCmd       `cmd:"" help:"List your habits."`
	Show       ShowCmd       `cmd:"" help:"Show every attribute of a habit."`
	Edit       EditCmd       `cmd:"" help:"Change attributes of a habit."`
	Delete     DeleteCmd     `cmd:"" help:"Delete a habit. Its scores are kept."`
	Complete   CompleteCmd   `cmd:"" help:"Mark a habit completed and record its points."`
	Uncomplete UncompleteCmd `cmd:"" help:"Clear the completed flag of a habit."`
	Points     PointsCmd     `cmd:"" help:"Show what completing a habit is worth."`
	ID         IDCmd         `cmd:"" name:"id" help:"Look up a habit id by title."`
}

type AddCmd struct {
	Title string `arg:"" help:"Habit title."`
	Type  string `short:"t" required:"" help:"Habit type (EXERCISE, WALK, DEMO or READ)."`

	AttrFlags `embed:""`
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	typ, err := parseType(c.Type)
	if err != nil {
		return err
	}
	f := models.NewHabitFields().Title(c.Title).Type(typ)
	c.apply(f)

	return ctx.Use(func(s *storage.Store) error {
		id, err := s.InsertHabit(ctx.Ctx, f)
		if err != nil {
			return err
		}
		ctx.Success("Added habit: %s (id %d)", c.Title, id)
		return nil
	})
}

type ListCmd struct {
	All bool `short:"a" help:"Include inactive habits."`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		habits, err := s.GetAllHabits(ctx.Ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTYPE\tPOINTS\tDONE")
		shown := 0
		for _, h := range habits {
			if !h.Active && !c.All {
				continue
			}
			done := ""
			if h.Completed {
				done = "✓"
			}
			title := h.Title
			if !h.Active {
				title += " " + cli.Muted("[inactive]")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", h.ID, title, h.Type, h.PointsPerCompletion, done)
			shown++
		}
		if shown == 0 {
			ctx.Println("No habits found.")
			return nil
		}
		return w.Flush()
	})
}

type ShowCmd struct {
	ID int64 `arg:"" help:"Habit id."`
}

func (c *ShowCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		h, found, err := s.GetHabitByID(ctx.Ctx, c.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("habit %d: %w", c.ID, storage.ErrNotFound)
		}
		out, err := yaml.Marshal(h)
		if err != nil {
			return fmt.Errorf("failed to render habit: %w", err)
		}
		ctx.Printf("%s", out)
		return nil
	})
}

type EditCmd struct {
	ID    int64    `arg:"" help:"Habit id."`
	Title *string  `help:"New title."`
	Type  *string  `short:"t" help:"New habit type."`
	Clear []string `help:"Columns to clear, e.g. --clear goal,habit_icon." sep:","`

	AttrFlags `embed:""`
}

func (c *EditCmd) Run(ctx *cli.Context) error {
	f := models.NewHabitFields()
	if c.Title != nil {
		f.Title(*c.Title)
	}
	if c.Type != nil {
		typ, err := parseType(*c.Type)
		if err != nil {
			return err
		}
		f.Type(typ)
	}
	c.apply(f)
	for _, name := range c.Clear {
		field, err := models.ParseField(name)
		if err != nil {
			return err
		}
		f.Clear(field)
	}
	if f.Len() == 0 {
		return fmt.Errorf("nothing to change; pass at least one attribute flag")
	}

	return ctx.Use(func(s *storage.Store) error {
		ok, err := s.UpdateHabitFull(ctx.Ctx, c.ID, f)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("habit %d: %w", c.ID, storage.ErrNotFound)
		}
		ctx.Success("Updated habit %d (%d field(s))", c.ID, f.Len())
		return nil
	})
}

type DeleteCmd struct {
	ID  int64 `arg:"" help:"Habit id."`
	Yes bool  `short:"y" help:"Skip the confirmation prompt."`
}

func (c *DeleteCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		h, found, err := s.GetHabitByID(ctx.Ctx, c.ID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("habit %d: %w", c.ID, storage.ErrNotFound)
		}
		if err := ctx.Confirmed(fmt.Sprintf("Delete habit %q?", h.Title), c.Yes); err != nil {
			return err
		}
		if _, err := s.DeleteHabit(ctx.Ctx, c.ID); err != nil {
			return err
		}
		ctx.Success("Deleted habit: %s", h.Title)
		return nil
	})
}

type CompleteCmd struct {
	Title string `arg:"" help:"Habit title."`
}

func (c *CompleteCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		entry, err := s.CompleteHabit(ctx.Ctx, c.Title)
		if err != nil {
			return err
		}
		total, err := s.GetTotalScore(ctx.Ctx)
		if err != nil {
			return err
		}
		ctx.Success("Completed %s (+%d points, total %d)", c.Title, entry.Points, total)
		return nil
	})
}

type UncompleteCmd struct {
	Title string `arg:"" help:"Habit title."`
}

func (c *UncompleteCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		n, err := s.UpdateHabitCompleted(ctx.Ctx, c.Title, false)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("habit %q: %w", c.Title, storage.ErrNotFound)
		}
		ctx.Success("Marked %s as not completed", c.Title)
		return nil
	})
}

type PointsCmd struct {
	Title string `arg:"" help:"Habit title."`
}

func (c *PointsCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		points, err := s.GetHabitPoints(ctx.Ctx, c.Title)
		if err != nil {
			return err
		}
		ctx.Printf("%d\n", points)
		return nil
	})
}

type IDCmd struct {
	Title string `arg:"" help:"Habit title."`
}

func (c *IDCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		id, err := s.GetHabitIDByTitle(ctx.Ctx, c.Title)
		if err != nil {
			return err
		}
		if id == constants.NoHabitID {
			return fmt.Errorf("habit %q: %w", c.Title, storage.ErrNotFound)
		}
		ctx.Printf("%d\n", id)
		return nil
	})
}
