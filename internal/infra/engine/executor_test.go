package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/wire"
)

func one(float64) float64 { return 1 }

// ─── Integrate Tests ────────────────────────────────────────────────────────

func TestIntegrate(t *testing.T) {
	tests := []struct {
		name   string
		kernel domain.Kernel
		task   domain.Task
		want   float64
	}{
		{"constant", one, domain.Task{Start: 0, End: 10, Step: 0.5}, 10},
		{"identity", func(x float64) float64 { return x }, domain.Task{Start: 0, End: 10, Step: 1}, 45},
		{"square", domain.Square, domain.Task{Start: 0, End: 3, Step: 1}, 5},
		{"empty interval", domain.Square, domain.Task{Start: 5, End: 5, Step: 1}, 0},
		{"reversed interval", domain.Square, domain.Task{Start: 5, End: 1, Step: 1}, 0},
		{"clipped last sample", one, domain.Task{Start: 0, End: 2.5, Step: 1}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Integrate(tt.kernel, tt.task); got != tt.want {
				t.Errorf("Integrate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntegrate_ApproximatesSquare(t *testing.T) {
	// ∫₀¹⁰ x² dx = 333.33…; the left sum with step 0.001 is within 0.1 of it.
	got := Integrate(domain.Square, domain.Task{Start: 0, End: 10, Step: 0.001})
	if math.Abs(got-1000.0/3) > 0.1 {
		t.Errorf("Integrate(x², 0..10) = %v, want ≈ 333.33", got)
	}
}

func TestIntegrate_StepBelowResolutionTerminates(t *testing.T) {
	done := make(chan float64, 1)
	go func() { done <- Integrate(one, domain.Task{Start: 1e17, End: 1e17 + 64, Step: 0.5}) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Integrate() did not terminate")
	}
}

// ─── Executor Tests ─────────────────────────────────────────────────────────

func startExecutor(t *testing.T, cfg Config, kernel domain.Kernel) (*Executor, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	e := New(cfg, kernel, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e, ln.Addr().String()
}

func roundTrip(t *testing.T, addr string, task domain.Task) (float64, error) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	if err := wire.WriteTask(conn, task); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}
	return wire.ReadResult(conn)
}

func TestExecutor_ServesTask(t *testing.T) {
	_, addr := startExecutor(t, DefaultConfig(), domain.Square)

	got, err := roundTrip(t, addr, domain.Task{Start: 0, End: 3, Step: 1})
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if got != 5 {
		t.Errorf("result = %v, want 5", got)
	}
}

func TestExecutor_SequentialConnections(t *testing.T) {
	_, addr := startExecutor(t, DefaultConfig(), one)

	for i := 0; i < 5; i++ {
		got, err := roundTrip(t, addr, domain.Task{Start: 0, End: 10, Step: 0.5})
		if err != nil {
			t.Fatalf("round trip %d: %v", i, err)
		}
		if got != 10 {
			t.Errorf("round trip %d = %v, want 10", i, got)
		}
	}
}

func TestExecutor_PartialRecordHalfClosed(t *testing.T) {
	_, addr := startExecutor(t, DefaultConfig(), domain.Square)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	record := wire.EncodeTask(domain.Task{Start: 0, End: 1, Step: 1})
	conn.Write(record[:wire.TaskSize-4])
	conn.(*net.TCPConn).CloseWrite()

	buf := make([]byte, wire.ResultSize)
	n, err := io.ReadFull(conn, buf)
	if n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("read = %d bytes, err %v; want 0 bytes, EOF", n, err)
	}
}

func TestExecutor_PartialRecordTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	_, addr := startExecutor(t, cfg, domain.Square)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	conn.Write([]byte{1, 2, 3})

	buf := make([]byte, wire.ResultSize)
	n, err := io.ReadFull(conn, buf)
	if n != 0 || err == nil {
		t.Errorf("read = %d bytes, err %v; want connection closed without response", n, err)
	}

	// The stalled client must not block later tasks.
	if _, err := roundTrip(t, addr, domain.Task{Start: 0, End: 1, Step: 1}); err != nil {
		t.Errorf("round trip after stalled client: %v", err)
	}
}

func TestExecutor_InvalidStepDropped(t *testing.T) {
	_, addr := startExecutor(t, DefaultConfig(), domain.Square)

	_, err := roundTrip(t, addr, domain.Task{Start: 0, End: 10, Step: 0})
	if !errors.Is(err, domain.ErrShortRecord) {
		t.Errorf("round trip with zero step = %v, want no response", err)
	}
}

func TestExecutor_Pool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrent = 4
	_, addr := startExecutor(t, cfg, one)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", addr, time.Second)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			conn.SetDeadline(time.Now().Add(2 * time.Second))
			if err := wire.WriteTask(conn, domain.Task{Start: 0, End: 4, Step: 1}); err != nil {
				errs <- err
				return
			}
			got, err := wire.ReadResult(conn)
			if err == nil && got != 4 {
				err = errors.New("wrong result")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("pooled round trip: %v", err)
		}
	}
}

func TestExecutor_StopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	e := New(DefaultConfig(), nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Serve(ctx, ln) }()

	deadline := time.Now().Add(time.Second)
	for !e.Serving() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve() after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}

func TestExecutor_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	cfg := DefaultConfig()
	cfg.Addr = ln.Addr().String()
	e := New(cfg, nil, zaptest.NewLogger(t))
	if err := e.ListenAndServe(context.Background()); !errors.Is(err, domain.ErrSocketSetup) {
		t.Errorf("ListenAndServe on busy port = %v, want ErrSocketSetup", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	e := New(Config{Addr: ":0"}, nil, zaptest.NewLogger(t))
	if e.config.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", e.config.MaxConcurrent)
	}
	if e.config.ReadTimeout != 2*time.Second {
		t.Errorf("ReadTimeout = %v, want 2s", e.config.ReadTimeout)
	}
	if e.kernel(4) != 16 {
		t.Error("nil kernel should default to Square")
	}
}
