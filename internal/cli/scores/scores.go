package scores

import (
	"fmt"
	"text/tabwriter"

	"github.com/julianstephens/habitus/internal/cli"
	"github.com/julianstephens/habitus/internal/storage"
)

type ScoreCmd struct {
	Add   AddCmd   `cmd:"" help:"Record points for a habit title."`
	List  ListCmd  `cmd:"" help:"List score entries, newest first."`
	Total TotalCmd `cmd:"" help:"Show the sum of your points."`
}

type AddCmd struct {
	Title  string `arg:"" help:"Habit title the points are for."`
	Points *int   `short:"p" help:"Points to record. Defaults to the habit's points."`
	Note   string `short:"n" help:"Optional note."`
}

func (c *AddCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		var points int
		if c.Points != nil {
			points = *c.Points
		} else {
			var err error
			if points, err = s.GetHabitPoints(ctx.Ctx, c.Title); err != nil {
				return err
			}
		}
		id, err := s.AddScoreWithNote(ctx.Ctx, c.Title, points, c.Note)
		if err != nil {
			return err
		}
		ctx.Success("Recorded %d points for %s (entry %d)", points, c.Title, id)
		return nil
	})
}

type ListCmd struct {
	Limit int `short:"l" help:"Show at most this many entries (0 for all)." default:"20"`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		entries, err := s.GetAllScores(ctx.Ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			ctx.Println("No scores recorded.")
			return nil
		}
		if c.Limit > 0 && len(entries) > c.Limit {
			entries = entries[:c.Limit]
		}

		w := tabwriter.NewWriter(ctx.Out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tHABIT\tPOINTS\tNOTE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Date.Local().Format("2006-01-02 15:04"), e.HabitTitle, e.Points, e.Note)
		}
		return w.Flush()
	})
}

type TotalCmd struct{}

func (c *TotalCmd) Run(ctx *cli.Context) error {
	return ctx.Use(func(s *storage.Store) error {
		total, err := s.GetTotalScore(ctx.Ctx)
		if err != nil {
			return err
		}
		ctx.Printf("%d\n", total)
		return nil
	})
}
