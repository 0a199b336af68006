// Package plan compiles an already-parsed configuration record into a
// validated, immutable api.RunPlan. It performs no I/O.
package plan

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/loadforge/loadforge/pkg/api"
)

var durationPattern = regexp.MustCompile(`^\d+[smhd]$`)

var structValidator = validator.New()

// Config is the caller-supplied, already-parsed plan configuration (from
// CLI flags, a config file, or an HTTP request body). Unlike api.RunPlan it
// has not yet been defaulted or validated.
type Config struct {
	TargetURL       string            `validate:"required,url"`
	TestKind        string            `validate:"required,oneof=protocol browser"`
	TotalVUs        int               `validate:"required,gt=0"`
	Duration        string            `validate:"required"`
	PerWorkerVUs    int               `validate:"required,gt=0"`
	WorkerResources api.WorkerResources
	WorkerImageRef  string `validate:"required"`
	BlobNamespace   string `validate:"required"`
	EnvOverrides    map[string]string
}

// Compile validates cfg and produces an immutable api.RunPlan. On any
// failing constraint it returns an *api.Error tagged ErrInvalidPlan whose
// Causes lists every failing constraint, not just the first.
func Compile(cfg Config) (*api.RunPlan, error) {
	var causes []string

	if err := structValidator.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				causes = append(causes, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		} else {
			causes = append(causes, err.Error())
		}
	}

	var dur time.Duration
	if cfg.Duration != "" {
		if !durationPattern.MatchString(cfg.Duration) {
			causes = append(causes, "duration must match ^\\d+[smhd]$")
		} else {
			d, err := parseDuration(cfg.Duration)
			if err != nil {
				causes = append(causes, "duration: "+err.Error())
			} else if d <= 0 {
				causes = append(causes, "duration must be positive")
			} else {
				dur = d
			}
		}
	}

	if cfg.WorkerResources.CPUCores <= 0 {
		causes = append(causes, "worker_resources.cpu_cores must be positive")
	}
	if cfg.WorkerResources.MemoryGiB <= 0 {
		causes = append(causes, "worker_resources.memory_gib must be positive")
	}

	if len(causes) > 0 {
		return nil, &api.Error{
			Code:    api.ErrInvalidPlan,
			Message: "plan failed validation",
			Causes:  causes,
		}
	}

	return &api.RunPlan{
		RunID:           generateRunID(),
		TargetURL:       cfg.TargetURL,
		TestKind:        api.TestKind(cfg.TestKind),
		TotalVUs:        cfg.TotalVUs,
		Duration:        dur,
		PerWorkerVUs:    cfg.PerWorkerVUs,
		WorkerResources: cfg.WorkerResources,
		WorkerImageRef:  cfg.WorkerImageRef,
		BlobNamespace:   cfg.BlobNamespace,
		EnvOverrides:    cfg.EnvOverrides,
	}, nil
}

// parseDuration supports the plain "^\d+[smhd]$" duration grammar, which
// time.ParseDuration only partially covers (it has no "d" unit).
func parseDuration(s string) (time.Duration, error) {
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	var n int
	if _, err := fmt.Sscanf(numPart, "%d", &n); err != nil {
		return 0, err
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported duration unit %q", string(unit))
	}
}

const runIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// generateRunID produces a short, URL-safe, time-sortable run identifier:
// an xid plus a short random suffix to further reduce collision risk across
// namespaces that reuse the same clock tick.
func generateRunID() string {
	id := xid.New()
	suffix := randomSuffix(4)
	return strings.ToLower(id.String()) + "-" + suffix
}

func randomSuffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = runIDAlphabet[rand.Intn(len(runIDAlphabet))]
	}
	return string(b)
}
