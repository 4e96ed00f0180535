package network

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrInvalidComposition  = errors.New("invalid composition")
	ErrClusterExists       = errors.New("cluster already in network")
	ErrCompositionOverflow = errors.New("composition exceeds configured maximum")
	ErrOverlappingSuper    = errors.New("super-cluster overlaps another cluster")
	ErrNotInitialized      = errors.New("network connectivity not initialized")
	ErrInvalidProperty     = errors.New("invalid network property")
)

// ConfigError reports an inconsistent network property. It is returned by New
// and is fatal for the run.
type ConfigError struct {
	Property string
	Value    string
	Reason   string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("network property %s: %s", e.Property, e.Reason)
	}
	return fmt.Sprintf("network property %s=%q: %s", e.Property, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidProperty) match any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidProperty
}

// ClusterError attaches the offending cluster name to a network failure.
type ClusterError struct {
	Op      string
	Cluster string
	Cause   error
}

func (e *ClusterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Cluster, e.Cause)
}

func (e *ClusterError) Unwrap() error {
	return e.Cause
}

func clusterError(op, name string, cause error) error {
	return &ClusterError{Op: op, Cluster: name, Cause: cause}
}
