package suite

import (
	"context"
	"fmt"
	"time"
)

// benchSizes are the informational benchmark inputs: 10 KiB text and 1 MiB
// binary.
var benchSizes = []struct {
	size   int
	binary bool
}{
	{10 * 1024, false},
	{1024 * 1024, true},
}

// benchmark times the subject and the reference on the same file. Timings
// are never asserted on; a crash still fails the case.
func benchmark(ctx context.Context, e *env) error {
	for _, b := range benchSizes {
		name := fmt.Sprintf("bench_%d.txt", b.size)
		if err := e.write(name, e.s.gen.Payload(b.size, b.binary)); err != nil {
			return err
		}

		inv := e.subject(nil, name)
		res, err := e.run(ctx, inv)
		if err != nil {
			return err
		}
		if !e.settle(ctx, name, inv, res) {
			continue
		}
		run, err := e.reference(ctx, nil, name)
		if err != nil {
			return err
		}
		ref := run.Result
		e.s.metrics.Benchmark(e.alg, "subject", b.size, res.Elapsed)
		e.s.metrics.Benchmark(e.alg, "reference", b.size, ref.Elapsed)

		ratio := 0.0
		if ref.Elapsed > 0 {
			ratio = float64(res.Elapsed) / float64(ref.Elapsed)
		}
		e.s.log.Info(ctx, "benchmark",
			"size", b.size,
			"subject", res.Elapsed.Round(time.Microsecond).String(),
			"reference", ref.Elapsed.Round(time.Microsecond).String(),
			"ratio", ratio)
		e.pass(ctx, name)
	}
	return nil
}
