package detector

import (
	"context"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// ScriptClassifier replays a fixed list of samples at a steady interval and
// then repeats it. It stands in for a model on benches without a camera.
type ScriptClassifier struct {
	name     string
	samples  []Sample
	interval time.Duration
	loop     bool
}

// ParseScript reads "label:confidence" items separated by commas, for
// example "none:0.9,ok:0.97,ok:0.98,ok:0.99".
func ParseScript(script string) ([]Sample, error) {
	var out []Sample
	for item := range strings.SplitSeq(script, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		label, conf, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("script item %q: want label:confidence", item)
		}
		c, err := strconv.ParseFloat(strings.TrimSpace(conf), 64)
		if err != nil {
			return nil, fmt.Errorf("script item %q: %w", item, err)
		}
		out = append(out, Sample{Label: strings.TrimSpace(label), Confidence: c})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty detector script")
	}
	return out, nil
}

// NewScriptClassifier creates a scripted classifier. With loop unset the
// stream ends after one pass.
func NewScriptClassifier(name string, samples []Sample, interval time.Duration, loop bool) *ScriptClassifier {
	return &ScriptClassifier{name: name, samples: samples, interval: interval, loop: loop}
}

func (s *ScriptClassifier) Name() string { return s.name }

func (s *ScriptClassifier) Detect(ctx context.Context) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		var tick <-chan time.Time
		if s.interval > 0 {
			t := time.NewTicker(s.interval)
			defer t.Stop()
			tick = t.C
		}
		for {
			for _, sample := range s.samples {
				if tick != nil {
					select {
					case <-ctx.Done():
						yield(Sample{}, ctx.Err())
						return
					case <-tick:
					}
				} else if err := ctx.Err(); err != nil {
					yield(Sample{}, err)
					return
				}
				sample.At = time.Now()
				if !yield(sample, nil) {
					return
				}
			}
			if !s.loop {
				return
			}
		}
	}
}
