package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/poppop/racer/pkg/core"
)

func TestContext_Lifecycle(t *testing.T) {
	ctx := NewContext()
	assert.Equal(t, core.StatusIdle, ctx.Get().State)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx.StartRace(&core.RaceInfo{
		ID:        "race-1",
		StartTime: started,
		Competitors: [2]core.CompetitorAttributes{
			{ID: "a", Name: "Player A"},
			{ID: "b"},
		},
	})

	info := ctx.Get()
	assert.Equal(t, "race-1", info.RaceID)
	assert.Equal(t, core.StatusRunning, info.State)
	assert.Equal(t, [2]string{"Player A", "b"}, info.Competitors)
	assert.Equal(t, started, info.StartedAt)

	ctx.Advance(42, core.StatusRunning)
	assert.Equal(t, uint64(42), ctx.Get().Tick)

	ctx.Finish("Player A")
	assert.Equal(t, core.StatusFinished, ctx.Get().State)
	assert.Equal(t, "Player A", ctx.Get().Winner)

	ctx.Clear()
	info = ctx.Get()
	assert.Equal(t, core.StatusIdle, info.State)
	assert.Empty(t, info.RaceID)
	assert.Equal(t, 1, info.RacesRun)
}

func TestContext_LogAttrs(t *testing.T) {
	ctx := NewContext()

	attrs := ctx.LogAttrs()
	assert.Len(t, attrs, 1)
	assert.Equal(t, "raceState", attrs[0].Key)
	assert.Equal(t, "idle", attrs[0].Value.String())

	ctx.StartRace(&core.RaceInfo{ID: "race-9"})
	attrs = ctx.LogAttrs()
	assert.Len(t, attrs, 2)
	assert.Equal(t, "raceId", attrs[1].Key)
	assert.Equal(t, "race-9", attrs[1].Value.String())
}

func TestContext_ThreadSafe(t *testing.T) {
	ctx := NewContext()
	ctx.StartRace(&core.RaceInfo{ID: "race-1"})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(tick uint64) {
			defer wg.Done()
			ctx.Advance(tick, core.StatusRunning)
		}(uint64(i))
		go func() {
			defer wg.Done()
			_ = ctx.LogAttrs()
		}()
	}
	wg.Wait()

	assert.Equal(t, "race-1", ctx.Get().RaceID)
}
