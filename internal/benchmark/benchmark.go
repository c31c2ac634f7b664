// Package benchmark measures per-frame latency of the counting stages.
package benchmark

import (
	"context"
	"fmt"
	"image"
	"io"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/MeKo-Tech/doorcount/internal/counter"
	"github.com/MeKo-Tech/doorcount/internal/overlay"
)

// MemoryStats holds memory usage statistics.
type MemoryStats struct {
	AllocBytes      uint64  `json:"alloc_bytes"`       // Currently allocated bytes
	TotalAllocBytes uint64  `json:"total_alloc_bytes"` // Total allocated bytes (cumulative)
	NumGC           uint32  `json:"num_gc"`
	GCCPUFraction   float64 `json:"gc_cpu_fraction"`
}

// GetMemoryStats returns current memory statistics.
func GetMemoryStats() MemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return MemoryStats{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		NumGC:           m.NumGC,
		GCCPUFraction:   m.GCCPUFraction,
	}
}

// Result holds the timings of one benchmark.
type Result struct {
	Name       string        `json:"name"`
	Iterations int           `json:"iterations"`
	Total      time.Duration `json:"total_ns"`
	Min        time.Duration `json:"min_ns"`
	Max        time.Duration `json:"max_ns"`
	Mean       time.Duration `json:"mean_ns"`
	P95        time.Duration `json:"p95_ns"`
	// AllocBytes is the cumulative allocation during the run.
	AllocBytes uint64 `json:"alloc_bytes"`
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
}

// FPS is the sustained frame rate implied by the mean latency.
func (r Result) FPS() float64 {
	if r.Mean <= 0 {
		return 0
	}
	return float64(time.Second) / float64(r.Mean)
}

// String returns a formatted string representation of the result.
func (r Result) String() string {
	if r.Err != nil {
		return fmt.Sprintf("%s: ERROR - %v", r.Name, r.Err)
	}
	return fmt.Sprintf("%s: %d iterations, mean: %v, p95: %v, min: %v, max: %v, %.1f fps, alloc: %d KB",
		r.Name, r.Iterations, r.Mean, r.P95, r.Min, r.Max, r.FPS(), r.AllocBytes/1024)
}

// Benchmark is one named operation run once per iteration.
type Benchmark struct {
	Name string
	Func func(ctx context.Context, iteration int) error
}

// Suite runs benchmarks in the order they were added.
type Suite struct {
	mu         sync.Mutex
	benchmarks []Benchmark
	results    []Result
}

// NewSuite creates an empty suite.
func NewSuite() *Suite {
	return &Suite{}
}

// Add appends a benchmark.
func (s *Suite) Add(name string, fn func(ctx context.Context, iteration int) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.benchmarks = append(s.benchmarks, Benchmark{Name: name, Func: fn})
}

// Run runs the named benchmark.
func (s *Suite) Run(ctx context.Context, name string, iterations int) Result {
	s.mu.Lock()
	idx := slices.IndexFunc(s.benchmarks, func(b Benchmark) bool { return b.Name == name })
	var b Benchmark
	if idx >= 0 {
		b = s.benchmarks[idx]
	}
	s.mu.Unlock()

	if idx < 0 {
		err := fmt.Errorf("benchmark '%s' not found", name)
		return Result{Name: name, Err: err, Error: err.Error()}
	}
	return runBenchmark(ctx, b, iterations)
}

// RunAll runs every benchmark and keeps the results.
func (s *Suite) RunAll(ctx context.Context, iterations int) []Result {
	s.mu.Lock()
	benchmarks := slices.Clone(s.benchmarks)
	s.mu.Unlock()

	results := make([]Result, 0, len(benchmarks))
	for _, b := range benchmarks {
		results = append(results, runBenchmark(ctx, b, iterations))
	}

	s.mu.Lock()
	s.results = results
	s.mu.Unlock()
	return results
}

// Results returns the last RunAll results.
func (s *Suite) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

func runBenchmark(ctx context.Context, b Benchmark, iterations int) Result {
	res := Result{Name: b.Name}
	if iterations <= 0 {
		iterations = 1
	}

	runtime.GC()
	before := GetMemoryStats()

	samples := make([]time.Duration, 0, iterations)
	for i := range iterations {
		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}
		start := time.Now()
		err := b.Func(ctx, i)
		samples = append(samples, time.Since(start))
		if err != nil {
			res.Err = err
			break
		}
	}

	res.AllocBytes = GetMemoryStats().TotalAllocBytes - before.TotalAllocBytes
	if res.Err != nil {
		res.Error = res.Err.Error()
	}
	summarize(&res, samples)
	return res
}

func summarize(res *Result, samples []time.Duration) {
	res.Iterations = len(samples)
	if len(samples) == 0 {
		return
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	for _, d := range sorted {
		res.Total += d
	}
	res.Min = sorted[0]
	res.Max = sorted[len(sorted)-1]
	res.Mean = res.Total / time.Duration(len(sorted))
	// Nearest-rank percentile.
	rank := (95*len(sorted) + 99) / 100
	res.P95 = sorted[max(rank-1, 0)]
}

// Stages are the per-frame operations of the counting loop. Nil stages are
// not registered.
type Stages struct {
	Detect  func(ctx context.Context, img image.Image) error
	Tracker counter.Tracker
	Filter  counter.TrackFilter
	// LineX is the counting line drawn by the overlay stage.
	LineX float64
}

// AddFrameBenchmarks registers one benchmark per stage. Each iteration
// processes the next frame, cycling through frames.
func (s *Suite) AddFrameBenchmarks(frames []image.Image, st Stages) {
	if len(frames) == 0 {
		return
	}
	frame := func(i int) image.Image { return frames[i%len(frames)] }

	if st.Detect != nil {
		s.Add("Detect", func(ctx context.Context, i int) error {
			return st.Detect(ctx, frame(i))
		})
	}

	var last []counter.Detection
	if st.Tracker != nil {
		s.Add("Track", func(ctx context.Context, i int) error {
			dets, err := st.Tracker.Track(ctx, frame(i), st.Filter)
			last = dets
			return err
		})
	}

	s.Add("Overlay", func(_ context.Context, i int) error {
		img := frame(i)
		out := overlay.Render(counter.Outcome{
			Detections: last,
			LineX:      st.LineX,
			Frame:      counter.Frame{Image: img},
		}, img.Bounds())
		return overlay.EncodeJPEG(io.Discard, out, 80)
	})
}

// PrintResults writes one line per result.
func PrintResults(w io.Writer, results []Result) {
	_, _ = fmt.Fprintln(w, "=== Frame benchmark ===")
	for _, r := range results {
		_, _ = fmt.Fprintln(w, r.String())
	}
}
