package view

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/poppop/racer/internal/track"
	"github.com/poppop/racer/pkg/core"
)

// statusRows is the number of rows kept below the track for text.
const statusRows = 4

// minimum terminal size the track is drawn at
const (
	minWidth  = 24
	minHeight = statusRows + 7
)

var (
	trackStyle  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	finishStyle = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	textStyle   = tcell.StyleDefault
	bannerStyle = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true).Reverse(true)

	fallbackColors = [2]tcell.Color{tcell.ColorRed, tcell.ColorBlue}
	markers        = [2]rune{'A', 'B'}
)

// Frame is everything the view draws.
type Frame struct {
	Snapshot   core.Snapshot
	Attributes [2]core.CompetitorAttributes
	Result     *core.RaceResult
}

// View renders race frames to a terminal screen.
type View struct {
	screen tcell.Screen
}

// New wraps an initialised screen.
func New(screen tcell.Screen) *View {
	return &View{screen: screen}
}

// NewTerminal opens and initialises the terminal screen.
func NewTerminal() (*View, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := screen.Init(); err != nil {
		return nil, err
	}
	screen.HideCursor()
	return New(screen), nil
}

// Close restores the terminal.
func (v *View) Close() {
	v.screen.Fini()
}

// Run redraws the frame returned by source every interval until ctx is done
// or the user quits with Esc, q or Ctrl-C. Quitting returns nil.
func (v *View) Run(ctx context.Context, source func() Frame, interval time.Duration) error {
	events := make(chan tcell.Event, 16)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-done:
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	v.Draw(source())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if isQuit(ev) {
					return nil
				}
			case *tcell.EventResize:
				v.screen.Sync()
			}
		case <-ticker.C:
			v.Draw(source())
		}
	}
}

func isQuit(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		return ev.Rune() == 'q' || ev.Rune() == 'Q'
	}
	return false
}

// Draw renders one frame.
func (v *View) Draw(f Frame) {
	s := v.screen
	s.Clear()

	w, h := s.Size()
	if w < minWidth || h < minHeight {
		drawText(s, 0, 0, w, "terminal too small", textStyle)
		s.Show()
		return
	}

	areaH := h - statusRows
	cx, cy := (w-1)/2, (areaH-1)/2
	oval := track.Oval{RX: float64(w/2 - 2), RY: float64(areaH/2 - 1)}

	plot := func(xy geom.XY) (int, int) {
		return cx + int(math.Round(xy.X)), cy - int(math.Round(xy.Y))
	}

	if outline, err := oval.Outline(int(4 * (oval.RX + oval.RY))); err == nil {
		seq := outline.Coordinates()
		for i := 0; i < seq.Length(); i++ {
			x, y := plot(seq.GetXY(i))
			s.SetContent(x, y, '·', nil, trackStyle)
		}
	}

	fx, fy := plot(oval.XY(0))
	s.SetContent(fx, fy, '|', nil, finishStyle)

	for i, c := range f.Snapshot.Competitors {
		x, y := plot(oval.XY(c.Distance))
		s.SetContent(x, y, markers[i], nil, competitorStyle(f.Attributes[i], i))
	}

	header := fmt.Sprintf("Tick %d  %s", f.Snapshot.Tick, f.Snapshot.Status)
	if f.Snapshot.RaceID != "" {
		header = fmt.Sprintf("Race %s  %s", shortID(f.Snapshot.RaceID), header)
	}
	drawText(s, 0, areaH, w, header, textStyle)

	for i, c := range f.Snapshot.Competitors {
		line := fmt.Sprintf("%c %-12s %s", markers[i], f.Attributes[i].Label(), StatusLine(c))
		drawText(s, 0, areaH+1+i, w, line, competitorStyle(f.Attributes[i], i))
	}
	drawText(s, 0, h-1, w, "q: quit", textStyle)

	if f.Result != nil {
		banner := fmt.Sprintf(" %s wins! ", f.Result.WinnerName)
		drawText(s, cx-len([]rune(banner))/2, cy, w, banner, bannerStyle)
	}

	s.Show()
}

// StatusLine formats one competitor's lap, distance, speed and stamina.
func StatusLine(c core.CompetitorSnapshot) string {
	return fmt.Sprintf("Lap %d/%d  Dist %6.1f  Speed %5.1f  Stamina %5.1f",
		min(c.Lap+1, core.TotalLaps), core.TotalLaps, c.Distance, c.Velocity, c.Stamina)
}

func competitorStyle(a core.CompetitorAttributes, slot int) tcell.Style {
	color := fallbackColors[slot]
	if a.Color != "" {
		if c := tcell.GetColor(a.Color); c != tcell.ColorDefault {
			color = c
		}
	}
	return tcell.StyleDefault.Foreground(color).Bold(true)
}

func drawText(s tcell.Screen, x, y, width int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= width {
			return
		}
		if x >= 0 {
			s.SetContent(x, y, r, nil, style)
		}
		x++
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
