package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/mcoot/tileclaim/internal/api/response"
	"github.com/mcoot/tileclaim/internal/services/cooldown"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case response.Profile:
		o.printProfile(v)
	case response.Join:
		o.printJoin(v)
	case response.Board:
		o.printBoard(v)
	case response.Claim:
		o.printClaim(v)
	case response.Leaderboard:
		o.printLeaderboard(v)
	case response.Health:
		o.printHealth(v)
	case response.Info:
		o.printInfo(v)
	case response.Reset:
		o.printReset(v)
	case cooldown.Policy:
		o.printPolicy(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func (o *Output) printProfile(p response.Profile) {
	fmt.Fprintf(o.w, "Profile: %s (%s)\n", p.Username, p.ID)
	fmt.Fprintf(o.w, "Colour: %s\n", p.Color)
	fmt.Fprintf(o.w, "Score: %d\n", p.Score)
	if p.CooldownUntil != nil && p.CooldownUntil.After(time.Now()) {
		fmt.Fprintf(o.w, "Cooldown until: %s\n", formatTime(p.CooldownUntil))
	}
}

func (o *Output) printJoin(j response.Join) {
	if j.Created {
		fmt.Fprintln(o.w, "Joined as a new player")
	} else {
		fmt.Fprintln(o.w, "Welcome back")
	}
	o.printProfile(j.Profile)
	fmt.Fprintf(o.w, "Token expires: %s\n", formatTime(&j.TokenExpiresAt))
}

func (o *Output) printBoard(b response.Board) {
	fmt.Fprintf(o.w, "Generation: %d (last reset %s)\n", b.Generation, formatTime(b.ResetAt))

	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTILE\tPLAYER\tRATING\tOWNER")
	for _, t := range b.Tiles {
		owner := "-"
		if t.ClaimedBy != nil {
			owner = *t.ClaimedBy
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", t.Index, t.ID, t.PlayerName, t.Rating, owner)
	}
	_ = tw.Flush()
}

func (o *Output) printClaim(c response.Claim) {
	fmt.Fprintf(o.w, "Claimed %s (%d)\n", c.Tile.PlayerName, c.Tile.Rating)
	fmt.Fprintf(o.w, "Score: %d\n", c.Score)
	fmt.Fprintf(o.w, "Cooldown until: %s\n", formatTime(&c.CooldownUntil))
}

func (o *Output) printLeaderboard(l response.Leaderboard) {
	if len(l.Entries) == 0 {
		fmt.Fprintln(o.w, "No tiles claimed yet")
		return
	}

	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tSCORE\tTILES")
	for _, e := range l.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", e.Rank, e.Name, e.Score, e.TileCount)
	}
	_ = tw.Flush()
}

func (o *Output) printHealth(h response.Health) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Store: %s\n", h.Store)
	if h.Error != "" {
		fmt.Fprintf(o.w, "Error: %s\n", h.Error)
	}
}

func (o *Output) printInfo(i response.Info) {
	fmt.Fprintf(o.w, "Board: %d tiles, %d unclaimed\n", i.BoardSize, i.Unclaimed)
	fmt.Fprintf(o.w, "Generation: %d\n", i.Generation)
	fmt.Fprintf(o.w, "Last reset: %s\n", formatTime(i.LastResetAt))
	fmt.Fprintf(o.w, "Next reset: %s\n", formatTime(i.NextResetAt))
	fmt.Fprintf(o.w, "Observers: %d\n", i.Observers)
}

func (o *Output) printReset(r response.Reset) {
	if r.Reason != "" {
		fmt.Fprintf(o.w, "Reset %s: %s\n", r.Status, r.Reason)
	} else {
		fmt.Fprintf(o.w, "Reset %s\n", r.Status)
	}
	fmt.Fprintf(o.w, "Generation: %d\n", r.Generation)
}

func (o *Output) printPolicy(p cooldown.Policy) {
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RATING\tCOOLDOWN")
	for _, step := range p.Steps {
		fmt.Fprintf(tw, "%d+\t%s\n", step.MinRating, step.Cooldown)
	}
	fmt.Fprintf(tw, "below\t%s\n", p.Fallback)
	_ = tw.Flush()
}
