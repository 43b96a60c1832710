package report

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deixis/agentstep/internal/driver"
	"github.com/deixis/agentstep/internal/message"
)

func mustRecords(t *testing.T, lines ...string) []message.Record {
	t.Helper()
	out := make([]message.Record, 0, len(lines))
	for _, l := range lines {
		r, err := message.Parse([]byte(l))
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func sampleRun(t *testing.T) *Run {
	return &Run{
		ID:         "run-1",
		Conclusion: "success",
		Records: mustRecords(t,
			`{"type":"system","subtype":"init","session_id":"s1","model":"sonnet"}`,
			`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Looking"},{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]}}`,
			`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1"}]}}`,
			`{"type":"assistant","message":{"role":"assistant","content":[{"type":"tool_use","id":"t2","name":"Read","input":{"file_path":"/a.go"}},{"type":"tool_use","id":"t3","name":"Bash","input":{"command":"go vet"}}]}}`,
			`{"type":"result","subtype":"success","num_turns":2,"total_cost_usd":0.5}`,
		),
	}
}

func TestEntries_FlattensTranscript(t *testing.T) {
	entries := Entries(sampleRun(t))
	require.Len(t, entries, 7)

	assert.Equal(t, "[system/init] model=sonnet", entries[0].Text)
	assert.Equal(t, "[text] Looking", entries[1].Text)
	assert.Equal(t, "Bash", entries[2].Tool)
	assert.Equal(t, "[tool] Bash         ls", entries[2].Text)
	assert.Equal(t, "[user] 1 content item(s)", entries[3].Text)
	assert.Equal(t, 3, entries[4].Index)
	assert.Equal(t, "[result/success] turns=2 cost_usd=0.5000", entries[6].Text)
}

func TestFilter(t *testing.T) {
	run := sampleRun(t)

	t.Run("empty", func(t *testing.T) {
		assert.Len(t, Filter(run, ""), 7)
	})
	t.Run("tool", func(t *testing.T) {
		got := Filter(run, "tool:bash")
		require.Len(t, got, 2)
		assert.Equal(t, "[tool] Bash         go vet", got[1].Text)
	})
	t.Run("type", func(t *testing.T) {
		got := Filter(run, "result")
		require.Len(t, got, 1)
		assert.Equal(t, 4, got[0].Index)
	})
	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, Filter(run, "tool:Write"))
	})
}

func TestToolCounts(t *testing.T) {
	assert.Equal(t, map[string]int{"Bash": 2, "Read": 1}, ToolCounts(sampleRun(t)))
}

func TestDiskStore_RoundTrip(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	run := sampleRun(t)
	require.NoError(t, s.Save(run))

	got, err := s.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, run.Conclusion, got.Conclusion)
	require.Len(t, got.Records, len(run.Records))
	assert.JSONEq(t, string(run.Records[1].Raw()), string(got.Records[1].Raw()))
}

func TestDiskStore_RejectsPathIDs(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	_, err := s.Load("../etc/passwd")
	assert.Error(t, err)
	_, err = s.Load("")
	assert.Error(t, err)
}

func TestDiskStore_Missing(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	_, err := s.Load("nope")
	assert.ErrorContains(t, err, "reading run nope")
}

type countingStore struct {
	Store
	loads atomic.Int32
}

func (c *countingStore) Load(id string) (*Run, error) {
	c.loads.Add(1)
	return c.Store.Load(id)
}

func TestLRUStore_EvictsOldest(t *testing.T) {
	back := &countingStore{Store: NewDiskStore(t.TempDir())}
	s := NewLRUStore(2, back)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(&Run{ID: id, Conclusion: "success"}))
	}

	_, err := s.Load("c")
	require.NoError(t, err)
	_, err = s.Load("b")
	require.NoError(t, err)
	assert.EqualValues(t, 0, back.loads.Load())

	got, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.EqualValues(t, 1, back.loads.Load())
}

func TestNewLRUStore_MinCapacity(t *testing.T) {
	s := NewLRUStore(0, NewDiskStore(t.TempDir()))
	require.NoError(t, s.Save(&Run{ID: "a"}))
	require.NoError(t, s.Save(&Run{ID: "b"}))
	assert.Equal(t, 1, s.Len())
}

func TestLRUStore_LoadBySessionID(t *testing.T) {
	back := &countingStore{Store: NewDiskStore(t.TempDir())}
	s := NewLRUStore(2, back)
	require.NoError(t, s.Save(&Run{ID: "run-a", SessionID: "sess-a", Conclusion: "success"}))

	got, err := s.Load("sess-a")
	require.NoError(t, err)
	assert.Equal(t, "run-a", got.ID)
	assert.EqualValues(t, 0, back.loads.Load())
}

func TestLRUStore_SessionIndexFollowsEviction(t *testing.T) {
	back := &countingStore{Store: NewDiskStore(t.TempDir())}
	s := NewLRUStore(1, back)
	require.NoError(t, s.Save(&Run{ID: "run-a", SessionID: "sess-a"}))
	require.NoError(t, s.Save(&Run{ID: "run-b", SessionID: "sess-b"}))

	_, err := s.Load("sess-a")
	assert.Error(t, err)

	got, err := s.Load("sess-b")
	require.NoError(t, err)
	assert.Equal(t, "run-b", got.ID)
}

func TestLRUStore_ResumedSessionKeepsNewestRun(t *testing.T) {
	s := NewLRUStore(2, NewDiskStore(t.TempDir()))
	require.NoError(t, s.Save(&Run{ID: "run-1", SessionID: "sess"}))
	require.NoError(t, s.Save(&Run{ID: "run-2", SessionID: "sess"}))
	require.NoError(t, s.Save(&Run{ID: "run-3"}))

	got, err := s.Load("sess")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.ID)
}

func TestNewRun(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		res := &driver.Result{
			Conclusion:       driver.Success,
			SessionID:        "s1",
			ExecutionFile:    "/tmp/out.json",
			StructuredOutput: `{"ok":true}`,
		}
		run := NewRun("r1", "p.txt", started, res, nil)
		assert.Equal(t, "success", run.Conclusion)
		assert.Equal(t, "s1", run.SessionID)
		assert.Equal(t, `{"ok":true}`, run.StructuredOutput)
		assert.Empty(t, run.Error)
		assert.Equal(t, started, run.StartedAt)
	})

	t.Run("run error", func(t *testing.T) {
		err := &driver.RunError{
			State:         driver.StateFinalizing,
			Conclusion:    driver.Failure,
			ExecutionFile: "/tmp/out.json",
			SessionID:     "s2",
			Err:           errors.New("no result message received from agent"),
		}
		run := NewRun("r2", "p.txt", started, nil, err)
		assert.Equal(t, "failure", run.Conclusion)
		assert.Equal(t, "s2", run.SessionID)
		assert.Equal(t, "/tmp/out.json", run.ExecutionFile)
		assert.Equal(t, "no result message received from agent", run.Error)
	})

	t.Run("plain error", func(t *testing.T) {
		run := NewRun("r3", "p.txt", started, nil, errors.New("boom"))
		assert.Equal(t, "failure", run.Conclusion)
		assert.Empty(t, run.SessionID)
	})
}
