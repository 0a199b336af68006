package api

import "context"

// BlobClient is the capability interface for the flat, namespaced object
// store every result and manifest is written to. Implementations must be
// safe for concurrent use.
type BlobClient interface {
	// Put uploads data under name in namespace, overwriting any existing
	// object of the same name. It returns once the write is durable.
	Put(ctx context.Context, namespace, name string, data []byte) error

	// Get downloads the object at name in namespace. It returns an *Error
	// tagged ErrBlobNotFound if the object does not exist.
	Get(ctx context.Context, namespace, name string) ([]byte, error)

	// List returns every object name in namespace starting with prefix, in
	// lexicographic order.
	List(ctx context.Context, namespace, prefix string) ([]string, error)

	// Exists reports whether name is present in namespace.
	Exists(ctx context.Context, namespace, name string) (bool, error)
}

// ContainerStatus is the provider's view of one container group, per the
// capability contract a Container Client implements.
type ContainerStatus struct {
	State    ContainerState
	ExitCode *int
}

// ContainerState is the provider-reported lifecycle state of a container
// group, independent of the richer WorkerState the Container Manager
// derives from it.
type ContainerState int

const (
	ContainerStateRunning ContainerState = iota
	ContainerStateTerminated
	ContainerStateUnknown
)

// ContainerClient is the capability interface for creating, polling,
// fetching logs for, and deleting one container group per worker. One
// implementation talks to a real cloud provider; another drives local
// Docker containers; a third is a deterministic in-memory fake used in
// tests.
type ContainerClient interface {
	// Create launches a container group running image with env set, sized
	// to the given resources, and returns the provider-assigned identifier.
	Create(ctx context.Context, groupName, image string, env map[string]string, cpuCores, memGiB float64) (providerID string, err error)

	// Status polls the current state of a previously created group.
	Status(ctx context.Context, providerID string) (ContainerStatus, error)

	// Delete tears down a container group. Implementations should treat a
	// delete of an already-gone group as success.
	Delete(ctx context.Context, providerID string) error

	// Logs best-effort fetches the container group's console output.
	Logs(ctx context.Context, providerID string) ([]byte, error)
}
