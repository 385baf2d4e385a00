package framesource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/airfield/birdstrike/internal/fsutil"
	"github.com/airfield/birdstrike/internal/timeutil"
)

func writeFrame(t *testing.T, fs *fsutil.MemoryFileSystem, session, cam string, n int) {
	t.Helper()
	require.NoError(t, fs.WriteFile("rec/"+session+"/"+cam+"/frame_"+itoa(n)+".jpg", []byte{0xFF, 0xD8}, 0644))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func TestSource_EmitsOnceAllCamerasAdvance(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	writeFrame(t, fs, "Recording_1", "A", 0)
	// Camera B has not produced frame 0 yet.

	src := New(fs, clock, "rec", []string{"A", "B"}, DefaultConfig())
	src.poll()

	select {
	case <-src.Out:
		t.Fatal("should not emit until every camera has advanced")
	default:
	}

	writeFrame(t, fs, "Recording_1", "B", 0)
	src.poll()

	select {
	case bundle := <-src.Out:
		require.Equal(t, int64(0), bundle.FrameID)
		require.Len(t, bundle.Images, 2)
	default:
		t.Fatal("expected a bundle once both cameras have frame 0")
	}
}

func TestSource_ResetsOnRollover(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	writeFrame(t, fs, "Recording_1", "A", 5)
	writeFrame(t, fs, "Recording_1", "B", 5)

	src := New(fs, clock, "rec", []string{"A", "B"}, DefaultConfig())
	src.poll()
	<-src.Out

	writeFrame(t, fs, "Recording_2", "A", 0)
	writeFrame(t, fs, "Recording_2", "B", 0)
	src.poll()

	select {
	case bundle := <-src.Out:
		require.Equal(t, int64(0), bundle.FrameID)
	default:
		t.Fatal("expected rollover to reset and emit frame 0 of the new session")
	}
}

func TestSource_DropsWhenOutFull(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	cfg := DefaultConfig()
	cfg.OutBuffer = 1
	src := New(fs, clock, "rec", []string{"A"}, cfg)

	writeFrame(t, fs, "Recording_1", "A", 0)
	src.poll()
	writeFrame(t, fs, "Recording_1", "A", 1)
	src.poll() // Out is now full with frame 0, this one should drop

	_, dropped, _ := src.Stats()
	require.Equal(t, uint64(1), dropped)
}

func TestSource_StalledAfterIdleTimeout(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))

	cfg := DefaultConfig()
	cfg.IdleTimeout = 1 * time.Second
	src := New(fs, clock, "rec", []string{"A"}, cfg)

	src.poll()
	clock.Advance(2 * time.Second)
	src.poll()

	_, _, stalled := src.Stats()
	require.Equal(t, uint64(1), stalled)
}
