package view

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poppop/racer/internal/config"
	"github.com/poppop/racer/pkg/core"
)

func newTestView(t *testing.T, w, h int) (*View, tcell.SimulationScreen) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(w, h)
	return New(screen), screen
}

func rowText(screen tcell.SimulationScreen, y int) string {
	w, _ := screen.Size()
	var sb strings.Builder
	for x := 0; x < w; x++ {
		mainc, _, _, _ := screen.GetContent(x, y)
		if mainc == 0 {
			mainc = ' '
		}
		sb.WriteRune(mainc)
	}
	return sb.String()
}

func testFrame() Frame {
	return Frame{
		Snapshot: core.Snapshot{
			RaceID: "0123456789abcdef",
			Status: core.StatusRunning,
			Tick:   42,
			Competitors: [2]core.CompetitorSnapshot{
				core.SnapshotOf(core.CompetitorState{Distance: 100, Velocity: 31.25, Stamina: 60}),
				core.SnapshotOf(core.CompetitorState{Distance: 700, Velocity: 33, Stamina: 55.5}),
			},
		},
		Attributes: config.DefaultCompetitors(),
	}
}

func TestDraw_PlacesCompetitorsOnOval(t *testing.T) {
	v, screen := newTestView(t, 80, 24)
	defer v.Close()

	v.Draw(testFrame())

	// 80x24 leaves a 20 row track area centred on (39, 9) with radii 38 and 9.
	mainc, _, style, _ := screen.GetContent(39, 0)
	assert.Equal(t, 'A', mainc)
	fg, _, _ := style.Decompose()
	assert.Equal(t, tcell.GetColor("#ff6b5c"), fg)

	mainc, _, _, _ = screen.GetContent(39, 18)
	assert.Equal(t, 'B', mainc)

	mainc, _, _, _ = screen.GetContent(77, 9)
	assert.Equal(t, '|', mainc)

	mainc, _, _, _ = screen.GetContent(1, 9)
	assert.Equal(t, '·', mainc)
}

func TestDraw_StatusLines(t *testing.T) {
	v, screen := newTestView(t, 80, 24)
	defer v.Close()

	v.Draw(testFrame())

	assert.Contains(t, rowText(screen, 20), "Race 01234567  Tick 42  running")
	assert.Contains(t, rowText(screen, 21), "Player A")
	assert.Contains(t, rowText(screen, 21), "Lap 1/3  Dist  100.0  Speed  31.2  Stamina  60.0")
	assert.Contains(t, rowText(screen, 22), "Lap 2/3  Dist  700.0")
	assert.Contains(t, rowText(screen, 23), "q: quit")
	assert.NotContains(t, rowText(screen, 9), "wins!")
}

func TestDraw_WinnerBanner(t *testing.T) {
	v, screen := newTestView(t, 80, 24)
	defer v.Close()

	f := testFrame()
	f.Snapshot.Status = core.StatusFinished
	f.Result = &core.RaceResult{WinnerIndex: 1, WinnerName: "Player B"}
	v.Draw(f)

	assert.Contains(t, rowText(screen, 9), " Player B wins! ")
	assert.Contains(t, rowText(screen, 20), "finished")
}

func TestDraw_TooSmall(t *testing.T) {
	v, screen := newTestView(t, 10, 5)
	defer v.Close()

	v.Draw(testFrame())
	assert.Equal(t, "terminal t", rowText(screen, 0))
}

func TestStatusLine(t *testing.T) {
	line := StatusLine(core.SnapshotOf(core.CompetitorState{Distance: 1250, Velocity: 40, Stamina: 0}))
	assert.Equal(t, "Lap 3/3  Dist 1250.0  Speed  40.0  Stamina   0.0", line)
}

func TestCompetitorStyle_Fallback(t *testing.T) {
	fg, _, _ := competitorStyle(core.CompetitorAttributes{}, 1).Decompose()
	assert.Equal(t, tcell.ColorBlue, fg)

	fg, _, _ = competitorStyle(core.CompetitorAttributes{Color: "not-a-colour"}, 0).Decompose()
	assert.Equal(t, tcell.ColorRed, fg)
}

func TestRun_QuitKeys(t *testing.T) {
	tests := []struct {
		desc string
		key  tcell.Key
		r    rune
	}{
		{desc: "q", key: tcell.KeyRune, r: 'q'},
		{desc: "escape", key: tcell.KeyEscape},
		{desc: "ctrl-c", key: tcell.KeyCtrlC},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			v, screen := newTestView(t, 80, 24)
			defer v.Close()

			done := make(chan error, 1)
			go func() {
				done <- v.Run(context.Background(), testFrame, 5*time.Millisecond)
			}()
			screen.InjectKey(tt.key, tt.r, tcell.ModNone)

			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("view did not quit")
			}
		})
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	v, _ := newTestView(t, 80, 24)
	defer v.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- v.Run(ctx, testFrame, 5*time.Millisecond)
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("view did not stop")
	}
}
