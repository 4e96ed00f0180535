package comm

import (
	"io"

	"github.com/dd0wney/cluso-cd/pkg/logging"
)

// resourceCleanup closes registered resources in reverse order. It keeps
// constructors that open several sockets free of cascading error handling:
//
//	cleanup := newResourceCleanup(logger)
//	defer cleanup.Cleanup()
//	...
//	cleanup.Add(sock, "reply socket")
//	...
//	cleanup.Clear() // success, keep everything open
type resourceCleanup struct {
	logger    logging.Logger
	resources []namedCloser
}

type namedCloser struct {
	closer io.Closer
	name   string
}

func newResourceCleanup(logger logging.Logger) *resourceCleanup {
	return &resourceCleanup{logger: logging.OrDefault(logger), resources: make([]namedCloser, 0, 4)}
}

func (rc *resourceCleanup) Add(closer io.Closer, name string) {
	rc.resources = append(rc.resources, namedCloser{closer: closer, name: name})
}

// Cleanup closes everything registered, logging failures. Safe to call twice.
func (rc *resourceCleanup) Cleanup() {
	_ = rc.CloseAll()
}

// Clear forgets the registered resources without closing them.
func (rc *resourceCleanup) Clear() {
	rc.resources = rc.resources[:0]
}

// CloseAll closes everything registered and returns the first error.
func (rc *resourceCleanup) CloseAll() error {
	var firstErr error
	for i := len(rc.resources) - 1; i >= 0; i-- {
		r := rc.resources[i]
		if r.closer == nil {
			continue
		}
		if err := r.closer.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			rc.logger.Warn("failed to close resource", logging.String("resource", r.name), logging.Error(err))
		}
	}
	rc.resources = rc.resources[:0]
	return firstErr
}

func (rc *resourceCleanup) Len() int { return len(rc.resources) }
