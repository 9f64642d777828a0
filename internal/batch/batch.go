// Package batch runs the pipeline for a file of independent targets.
package batch

import (
	"context"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/listing-sync/internal/model"
	"github.com/sells-group/listing-sync/internal/pipeline"
)

// DefaultMaxConcurrent bounds simultaneous runs when no limit is configured.
const DefaultMaxConcurrent = 2

// Target is one marketplace search to run. The credential is read from the
// environment variable named by CredentialEnv so targets files hold no secrets.
type Target struct {
	Name          string            `yaml:"name"`
	URL           string            `yaml:"url"`
	CredentialEnv string            `yaml:"credential_env"`
	Filters       map[string]string `yaml:"filters"`
	DryRun        bool              `yaml:"dry_run"`
}

type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads and validates a YAML targets file.
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read %s", path)
	}
	return ParseTargets(data)
}

// ParseTargets decodes targets YAML.
func ParseTargets(data []byte) ([]Target, error) {
	var f targetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "batch: parse targets")
	}
	if len(f.Targets) == 0 {
		return nil, eris.New("batch: no targets defined")
	}
	seen := make(map[string]bool, len(f.Targets))
	for i, t := range f.Targets {
		if strings.TrimSpace(t.Name) == "" {
			return nil, eris.Errorf("batch: target %d has no name", i+1)
		}
		if seen[t.Name] {
			return nil, eris.Errorf("batch: duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
		if t.CredentialEnv == "" {
			return nil, eris.Errorf("batch: target %q has no credential_env", t.Name)
		}
	}
	return f.Targets, nil
}

// Runner runs one invocation. *pipeline.Coordinator implements it.
type Runner interface {
	Run(ctx context.Context, inv pipeline.Invocation) *model.PipelineResult
}

// Outcome pairs a target with its result.
type Outcome struct {
	Target string                `json:"target"`
	Result *model.PipelineResult `json:"result"`
}

// Run executes targets with at most maxConcurrent in flight. Runs are
// independent: one failing does not stop the others. Results keep the order
// of targets. lookupEnv is normally os.LookupEnv.
func Run(ctx context.Context, runner Runner, targets []Target, maxConcurrent int, lookupEnv func(string) (string, bool)) []Outcome {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	out := make([]Outcome, len(targets))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, t := range targets {
		cred, ok := lookupEnv(t.CredentialEnv)
		if !ok {
			// An unset variable is run as an empty credential so the
			// outcome carries the usual rejection diagnostics.
			zap.L().Warn("batch: credential env not set",
				zap.String("target", t.Name),
				zap.String("env", t.CredentialEnv),
			)
		}
		g.Go(func() error {
			res := runner.Run(ctx, pipeline.Invocation{
				URL:        t.URL,
				Credential: cred,
				Filters:    t.Filters,
				DryRun:     t.DryRun,
			})
			out[i] = Outcome{Target: t.Name, Result: res}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Summary counts successful and failed outcomes.
func Summary(outcomes []Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Result != nil && o.Result.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
