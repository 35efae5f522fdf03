package watch

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/spigot/internal/stream"
	"github.com/dyluth/spigot/pkg/statusboard"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBoard(t *testing.T) *statusboard.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := statusboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func progress(digits uint64, status stream.Status) stream.Progress {
	return stream.Progress{
		RunID:         "5f0c1a2b-aaaa-bbbb-cccc-000000000000",
		DigitsWritten: digits,
		Rate:          100,
		SmoothedRate:  90,
		Status:        status,
		At:            time.UnixMilli(1_700_000_000_000),
	}
}

func TestPublisher_FlushesFinalReportOnClose(t *testing.T) {
	board := setupBoard(t)
	p := NewPublisher(board, "test-instance", "/data/pi")

	p.Report(progress(10, stream.StatusRunning))
	p.Report(progress(20, stream.StatusRunning))
	p.Report(progress(30, stream.StatusStopped))
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	got, err := board.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stopped", got.Status)
	assert.Equal(t, uint64(30), got.DigitsWritten)
	assert.Equal(t, "/data/pi", got.OutputDir)
	assert.Equal(t, "test-instance", got.Instance)
	assert.Equal(t, int64(1_700_000_000_000), got.TimestampMs)
}

type recordingBoard struct {
	mu     sync.Mutex
	events []statusboard.Event
	err    error
	block  chan struct{}
}

func (b *recordingBoard) Publish(ctx context.Context, e *statusboard.Event) error {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, *e)
	return b.err
}

func TestPublisher_DoesNotBlockOnSlowBoard(t *testing.T) {
	board := &recordingBoard{block: make(chan struct{})}
	p := NewPublisher(board, "test-instance", "/data/pi")

	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= 100; i++ {
			p.Report(progress(i, stream.StatusRunning))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked on a stalled board")
	}

	close(board.block)
	require.NoError(t, p.Close())

	board.mu.Lock()
	defer board.mu.Unlock()
	require.NotEmpty(t, board.events)
	assert.LessOrEqual(t, len(board.events), 2)
	assert.Equal(t, uint64(100), board.events[len(board.events)-1].DigitsWritten)
}

func TestPublisher_ErrorsDoNotStopPublishing(t *testing.T) {
	board := &recordingBoard{err: errors.New("connection refused")}
	p := NewPublisher(board, "test-instance", "")
	p.Report(progress(1, stream.StatusRunning))
	require.NoError(t, p.Close())

	board.mu.Lock()
	defer board.mu.Unlock()
	assert.Len(t, board.events, 1)
}

type deadlineBoard struct {
	budgets chan time.Duration
}

func (b *deadlineBoard) Publish(ctx context.Context, e *statusboard.Event) error {
	if dl, ok := ctx.Deadline(); ok {
		b.budgets <- time.Until(dl)
	}
	return nil
}

func TestPublisher_PublishTimeoutBoundsEachCall(t *testing.T) {
	board := &deadlineBoard{budgets: make(chan time.Duration, 1)}
	p := NewPublisher(board, "test-instance", "", WithPublishTimeout(150*time.Millisecond))
	p.Report(progress(1, stream.StatusRunning))
	require.NoError(t, p.Close())

	select {
	case budget := <-board.budgets:
		assert.Greater(t, budget, time.Duration(0))
		assert.LessOrEqual(t, budget, 150*time.Millisecond)
	default:
		t.Fatal("publish ran without a deadline")
	}
}

func TestPollForStatus(t *testing.T) {
	board := setupBoard(t)
	ctx := context.Background()

	go func() {
		time.Sleep(300 * time.Millisecond)
		e := &statusboard.Event{RunID: "r1", Instance: "test-instance", Status: "running", TimestampMs: 1}
		_ = board.Publish(ctx, e)
	}()

	e, err := PollForStatus(ctx, board, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "r1", e.RunID)
}

func TestPollForStatus_Timeout(t *testing.T) {
	board := setupBoard(t)

	_, err := PollForStatus(context.Background(), board, 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout waiting for status")
}

func TestFollow_StopsAtTerminalStatus(t *testing.T) {
	board := setupBoard(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, board.Publish(ctx, &statusboard.Event{RunID: "r1", Instance: "test-instance", Status: "running", DigitsWritten: 5, TimestampMs: 1000}))

	var out bytes.Buffer
	result := make(chan *statusboard.Event, 1)
	go func() {
		last, err := Follow(ctx, board, &out, OutputFormatJSONL)
		assert.NoError(t, err)
		result <- last
	}()

	// Publish until the follower has subscribed and sees the terminal event.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case last := <-result:
			require.NotNil(t, last)
			assert.Equal(t, "stopped", last.Status)
			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			assert.Contains(t, lines[len(lines)-1], `"status":"stopped"`)
			assert.Contains(t, lines[len(lines)-1], `"digits_written":9`)
			return
		case <-ticker.C:
			require.NoError(t, board.Publish(ctx, &statusboard.Event{RunID: "r1", Instance: "test-instance", Status: "stopped", DigitsWritten: 9, TimestampMs: 2000}))
		case <-ctx.Done():
			t.Fatal("follow did not finish")
		}
	}
}

func TestFollow_ReturnsImmediatelyForFinishedRun(t *testing.T) {
	board := setupBoard(t)
	ctx := context.Background()
	require.NoError(t, board.Publish(ctx, &statusboard.Event{RunID: "r1", Instance: "test-instance", Status: "failed", Reason: "sync failed", TimestampMs: 1000}))

	var out bytes.Buffer
	last, err := Follow(ctx, board, &out, OutputFormatText)
	require.NoError(t, err)
	assert.Equal(t, "failed", last.Status)
	assert.Contains(t, out.String(), `FAILED`)
	assert.Contains(t, out.String(), `reason="sync failed"`)
}

func TestFormatLine(t *testing.T) {
	e := &statusboard.Event{
		RunID:         "5f0c1a2b-aaaa",
		Status:        "paused",
		DigitsWritten: 123456,
		Rate:          0,
		SmoothedRate:  812.6,
		Reason:        "Free space 1GiB < 2GiB",
		TimestampMs:   1_700_000_000_000,
	}
	clock := time.UnixMilli(e.TimestampMs).Format("15:04:05")

	assert.Equal(t,
		clock+` PAUSED   digits=123456 rate=0/s avg=813/s run=5f0c1a2b reason="Free space 1GiB < 2GiB"`,
		FormatLine(e))
}

func TestFormatTable(t *testing.T) {
	now := time.UnixMilli(1_700_000_180_000)

	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Equal(t, 0, FormatTable(&buf, nil, "lab", now))
		assert.Equal(t, "No status history for instance 'lab'\n", buf.String())
	})

	t.Run("rows", func(t *testing.T) {
		var buf bytes.Buffer
		events := []*statusboard.Event{
			{RunID: "5f0c1a2b-aaaa", Status: "running", DigitsWritten: 50000, SmoothedRate: 1000, TimestampMs: 1_700_000_000_000},
			{RunID: "5f0c1a2b-aaaa", Status: "stopped", DigitsWritten: 60000, TimestampMs: 1_700_000_120_000},
		}
		assert.Equal(t, 2, FormatTable(&buf, events, "lab", now))

		out := buf.String()
		assert.Contains(t, out, "Status history for instance 'lab'")
		assert.Contains(t, out, "3 minutes ago")
		assert.Contains(t, out, "About a minute ago")
		assert.Contains(t, out, "2 events found")
	})
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: OutputFormatText},
		{in: "text", want: OutputFormatText},
		{in: "jsonl", want: OutputFormatJSONL},
		{in: "yaml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOutputFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
