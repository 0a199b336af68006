// Package healthcheck verifies, on demand, that the configured Container
// Client and Blob Client are reachable; the daemon exposes it via
// GET /healthz and the CLI via the healthcheck command.
package healthcheck

import (
	"context"
	"time"

	"github.com/loadforge/loadforge/pkg/api"
)

// probeNamespace is a well-known namespace the blob check writes to; it
// never collides with a real run_id since those are generated from xid.
const probeNamespace = "loadforge-healthcheck"

// Result is the outcome of one health check pass.
type Result struct {
	OK        bool      `json:"ok"`
	CheckedAt time.Time `json:"checked_at"`
	Container Probe     `json:"container"`
	Blob      Probe     `json:"blob"`
}

// Probe is the outcome of a single dependency check.
type Probe struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Checker holds the provider clients a running daemon was wired with.
type Checker struct {
	container api.ContainerClient
	blob      api.BlobClient
}

// New builds a Checker over the given provider clients.
func New(container api.ContainerClient, blob api.BlobClient) *Checker {
	return &Checker{container: container, blob: blob}
}

// Check runs both probes and returns their combined result. It never
// returns an error itself: failures are reported per-probe so a caller
// can distinguish "container provider down" from "blob store down".
func (c *Checker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res := Result{CheckedAt: time.Now()}
	res.Container = c.checkContainer(ctx)
	res.Blob = c.checkBlob(ctx)
	res.OK = res.Container.OK && res.Blob.OK
	return res
}

// checkContainer polls the status of a sentinel provider id. Providers are
// expected to report ErrProviderUnavailable when the backing API itself is
// unreachable; a "no such group" style ErrProviderFatal still demonstrates
// that the provider answered, so it counts as healthy.
func (c *Checker) checkContainer(ctx context.Context) Probe {
	_, err := c.container.Status(ctx, "loadforge-healthcheck-probe")
	if err == nil {
		return Probe{OK: true}
	}
	if api.CodeOf(err) == api.ErrProviderUnavailable {
		return Probe{OK: false, Error: err.Error()}
	}
	return Probe{OK: true}
}

func (c *Checker) checkBlob(ctx context.Context) Probe {
	name := "ping-" + time.Now().UTC().Format(time.RFC3339Nano)
	if err := c.blob.Put(ctx, probeNamespace, name, []byte("ok")); err != nil {
		return Probe{OK: false, Error: err.Error()}
	}
	if _, err := c.blob.Get(ctx, probeNamespace, name); err != nil {
		return Probe{OK: false, Error: err.Error()}
	}
	return Probe{OK: true}
}
