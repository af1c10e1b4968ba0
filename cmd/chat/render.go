package main

import (
	"fmt"
	"io"
	"time"

	"github.com/gookit/color"
	"github.com/samber/lo"

	"github.com/omochice/livechat/internal/transcript"
)

// renderer prints transcript entries that have not been printed yet.
// A history replacement reprints the whole transcript.
type renderer struct {
	out        io.Writer
	self       string
	loc        *time.Location
	printed    int
	generation uint64

	own    color.Color
	system color.Color
}

func newRenderer(out io.Writer, self string) *renderer {
	return &renderer{
		out:    out,
		self:   self,
		loc:    time.Local,
		own:    color.FgGreen,
		system: color.FgYellow,
	}
}

func (r *renderer) render(store *transcript.Store) {
	for {
		gen := store.Generation()
		if gen != r.generation {
			r.generation = gen
			r.printed = 0
		}
		entries := store.Since(r.printed)
		if store.Generation() != gen {
			// replaced while reading; start over
			continue
		}
		r.printed += len(entries)
		for _, line := range lo.Map(entries, func(e transcript.Entry, _ int) string { return r.format(e) }) {
			fmt.Fprintln(r.out, line)
		}
		return
	}
}

func (r *renderer) format(e transcript.Entry) string {
	line := fmt.Sprintf("[%s] %s: %s", r.clock(e.CreatedAt), e.Username, e.Text)
	switch {
	case e.System:
		return r.system.Render(line)
	case e.Username == r.self:
		return r.own.Render(line)
	default:
		return line
	}
}

func (r *renderer) clock(createdAt string) string {
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return createdAt
	}
	return t.In(r.loc).Format(time.TimeOnly)
}

// notice prints a client-side line that is not part of the transcript.
func (r *renderer) notice(format string, args ...any) {
	fmt.Fprintln(r.out, r.system.Render("*** "+fmt.Sprintf(format, args...)+" ***"))
}
