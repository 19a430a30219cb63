package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/dcheck/check"
	"github.com/teranos/dcheck/errors"
)

const runID = "run-1"

func openTest(t *testing.T, path string) *Ledger {
	t.Helper()
	l, err := Open(path, runID, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func completed(table, fp string, sev check.Severity) Record {
	return Record{TableID: table, Fingerprint: fp, Severity: sev, ArtifactPath: "tables/" + table + ".json"}
}

func TestLedger_AppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l := openTest(t, path)

	_, ok := l.IsComplete(runID, "t1")
	assert.False(t, ok)

	require.NoError(t, l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK)))
	require.NoError(t, l.Append(runID, completed("t2", "sha256:bb", check.SeverityError)))

	rec, ok := l.IsComplete(runID, "t2")
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.Seq)
	assert.Equal(t, KindCompleted, rec.Kind)
	assert.Equal(t, check.SeverityError, rec.Severity)
	assert.False(t, rec.Timestamp.IsZero())
	require.NoError(t, l.Close())

	reopened := openTest(t, path)
	rec, ok = reopened.IsComplete(runID, "t1")
	require.True(t, ok)
	assert.Equal(t, "sha256:aa", rec.Fingerprint)
	assert.Equal(t, check.SeverityOK, rec.Severity)

	records := reopened.Completed(runID)
	require.Len(t, records, 2)
	assert.Equal(t, "t1", records[0].TableID)
	assert.Equal(t, "t2", records[1].TableID)

	// other run ids are never complete here
	_, ok = reopened.IsComplete("run-2", "t1")
	assert.False(t, ok)
}

func TestLedger_AppendIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l := openTest(t, path)

	require.NoError(t, l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK)))
	require.NoError(t, l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK)))

	assert.Len(t, l.Records(), 1, "identical append writes nothing")
}

func TestLedger_ConflictingAppendIsIntegrityViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l := openTest(t, path)

	require.NoError(t, l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK)))
	err := l.Append(runID, completed("t1", "sha256:bb", check.SeverityFail))

	require.Error(t, err)
	assert.True(t, errors.IsIntegrityViolation(err))
	assert.Contains(t, strings.Join(errors.GetAllHints(err), " "), "ledger supersede")

	rec, _ := l.IsComplete(runID, "t1")
	assert.Equal(t, "sha256:aa", rec.Fingerprint, "history is not rewritten")
}

func TestLedger_Supersede(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l := openTest(t, path)

	require.NoError(t, l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK)))
	require.NoError(t, l.Append(runID, completed("t2", "sha256:bb", check.SeverityOK)))

	require.NoError(t, l.Supersede(runID, "t1", "source table reloaded"))
	_, ok := l.IsComplete(runID, "t1")
	assert.False(t, ok)
	_, ok = l.IsComplete(runID, "t2")
	assert.True(t, ok)

	// after superseding, a new fingerprint is accepted
	require.NoError(t, l.Append(runID, completed("t1", "sha256:cc", check.SeverityWarning)))

	require.NoError(t, l.Supersede(runID, "", "fresh run"))
	assert.Empty(t, l.Completed(runID))
	require.NoError(t, l.Close())

	// replay reaches the same state and keeps the full history
	reopened := openTest(t, path)
	assert.Empty(t, reopened.Completed(runID))
	records := reopened.Records()
	require.Len(t, records, 5)
	assert.Equal(t, KindSupersede, records[2].Kind)
	assert.Equal(t, "source table reloaded", records[2].Reason)
	assert.Equal(t, KindSupersede, records[4].Kind)
	assert.Empty(t, records[4].TableID)
}

func TestLedger_TornTailIsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l := openTest(t, path)
	require.NoError(t, l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK)))
	require.NoError(t, l.Close())

	good, err := os.ReadFile(path)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"seq":2,"kind":"completed","run_id":"run-1","tab`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openTest(t, path)
	assert.Len(t, reopened.Records(), 1)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, good, data)

	// appending continues cleanly after the truncation
	require.NoError(t, reopened.Append(runID, completed("t2", "sha256:bb", check.SeverityOK)))
	rec, ok := reopened.IsComplete(runID, "t2")
	require.True(t, ok)
	assert.Equal(t, int64(2), rec.Seq)
}

func TestOpen_IntegrityViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "malformed middle line",
			content: `{"seq":1,"kind":"completed","run_id":"run-1","table_id":"t1","severity":"ok","fingerprint":"sha256:aa","ts":"2026-10-16T10:00:00Z"}
not json
{"seq":2,"kind":"completed","run_id":"run-1","table_id":"t2","severity":"ok","fingerprint":"sha256:bb","ts":"2026-10-16T10:00:01Z"}
`,
			wantErr: "ledger line 2",
		},
		{
			name: "sequence goes backwards",
			content: `{"seq":2,"kind":"completed","run_id":"run-1","table_id":"t1","severity":"ok","fingerprint":"sha256:aa","ts":"2026-10-16T10:00:00Z"}
{"seq":1,"kind":"completed","run_id":"run-1","table_id":"t2","severity":"ok","fingerprint":"sha256:bb","ts":"2026-10-16T10:00:01Z"}
`,
			wantErr: "sequence 1 does not follow 2",
		},
		{
			name: "conflicting completions",
			content: `{"seq":1,"kind":"completed","run_id":"run-1","table_id":"t1","severity":"ok","fingerprint":"sha256:aa","ts":"2026-10-16T10:00:00Z"}
{"seq":2,"kind":"completed","run_id":"run-1","table_id":"t1","severity":"fail","fingerprint":"sha256:bb","ts":"2026-10-16T10:00:01Z"}
`,
			wantErr: "already completed",
		},
		{
			name:    "unknown kind",
			content: `{"seq":1,"kind":"deleted","run_id":"run-1","ts":"2026-10-16T10:00:00Z"}` + "\n",
			wantErr: `unknown record kind "deleted"`,
		},
		{
			name:    "unknown severity",
			content: `{"seq":1,"kind":"completed","run_id":"run-1","table_id":"t1","severity":"meh","fingerprint":"sha256:aa","ts":"2026-10-16T10:00:00Z"}` + "\n",
			wantErr: "ledger line 1",
		},
		{
			name:    "record from another run",
			content: `{"seq":1,"kind":"completed","run_id":"run-9","table_id":"t1","severity":"ok","fingerprint":"sha256:aa","ts":"2026-10-16T10:00:00Z"}` + "\n",
			wantErr: `belongs to run "run-9"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Open(path, runID, zap.NewNop().Sugar())
			require.Error(t, err)
			assert.True(t, errors.IsIntegrityViolation(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReplay_SkipsBlankLinesAndKeepsFirstDuplicate(t *testing.T) {
	content := `{"seq":1,"kind":"completed","run_id":"r","table_id":"t1","severity":"warning","fingerprint":"sha256:aa","ts":"2026-10-16T10:00:00Z"}

{"seq":2,"kind":"completed","run_id":"r","table_id":"t1","severity":"warning","fingerprint":"sha256:aa","ts":"2026-10-16T10:00:05Z"}
`
	state, err := Replay(strings.NewReader(content))
	require.NoError(t, err)
	rec, ok := state.Authoritative("r", "t1")
	require.True(t, ok)
	assert.Equal(t, int64(1), rec.Seq)
	assert.Equal(t, int64(2), state.LastSeq())
	assert.Len(t, state.Records(), 2)
}

func TestLedger_AppendAfterClose(t *testing.T) {
	l := openTest(t, filepath.Join(t.TempDir(), FileName))
	require.NoError(t, l.Close())

	err := l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK))
	assert.True(t, errors.IsDurabilityFault(err))
}

func TestLedger_WrongRunID(t *testing.T) {
	l := openTest(t, filepath.Join(t.TempDir(), FileName))
	err := l.Append("other-run", completed("t1", "sha256:aa", check.SeverityOK))
	assert.ErrorContains(t, err, "belongs to run")
}

func TestRecord_SupersedeHasNoSeverity(t *testing.T) {
	data, err := Record{Seq: 3, Kind: KindSupersede, RunID: "r", Reason: "x", Timestamp: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"seq":3,"kind":"supersede","run_id":"r","reason":"x","ts":"2026-10-16T00:00:00Z"}`, string(data))
}

func TestFollow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	l := openTest(t, path)
	require.NoError(t, l.Append(runID, completed("t1", "sha256:aa", check.SeverityOK)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []string
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, func(rec Record) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, rec.TableID)
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, l.Append(runID, completed("t2", "sha256:bb", check.SeverityOK)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, []string{"t1", "t2"}, seen)
}
