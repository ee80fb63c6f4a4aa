package embed

import (
	"errors"
	"fmt"
)

// ErrConfig is the sentinel wrapped by every configuration error the engine
// raises: invalid n_pull, too few factors, mismatched identifier sets,
// missing features. These are caller mistakes and are never retried.
var ErrConfig = errors.New("invalid embedding configuration")

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// DegeneracyKind classifies a recoverable degenerate-input condition. The
// engine applies a defined fallback and reports the condition instead of
// aborting.
type DegeneracyKind string

const (
	// DegenerateZeroLoadings marks an entity whose selected pull loadings
	// were all zero; the pull fell back to uniform anchor weights.
	DegenerateZeroLoadings DegeneracyKind = "zero_loadings"
	// DegenerateNoNeighbors marks a sample with no similarity-graph edges;
	// smoothing kept its provisional position.
	DegenerateNoNeighbors DegeneracyKind = "no_neighbors"
)

// Degeneracy records one degenerate-input warning surfaced during a run.
type Degeneracy struct {
	Kind DegeneracyKind `json:"kind"`
	ID   string         `json:"id"`
}

func (d Degeneracy) String() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.ID)
}
