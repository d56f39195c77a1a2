package matriz

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// -----------------------------------------------------------------------------
// Adapter Functions - wrap functions to create audit-node processors
// -----------------------------------------------------------------------------

// Do creates a processor from a custom function that can fail.
// This is the easiest way to add custom logic to a node pipeline.
//
// Example:
//
//	redact := matriz.Do("redact-pseudonym", func(ctx context.Context, n *matriz.Node) (*matriz.Node, error) {
//	    if n.Provenance.SubjectPseudonym == "" {
//	        return n, fmt.Errorf("node %s has no pseudonym to redact", n.ID)
//	    }
//	    return n, nil
//	})
func Do(name string, fn func(context.Context, *Node) (*Node, error)) pipz.Processor[*Node] {
	return pipz.Apply(pipz.Name(name), fn)
}

// Transform creates a processor from a pure transformation function.
// Use this when your operation cannot fail.
func Transform(name string, fn func(context.Context, *Node) *Node) pipz.Processor[*Node] {
	return pipz.Transform(pipz.Name(name), fn)
}

// Effect creates a processor that performs a side effect without modifying
// the node. Use this for logging, metrics, or other observation.
//
// Example:
//
//	audit := matriz.Effect("audit-log", func(ctx context.Context, n *matriz.Node) error {
//	    log.Printf("node %s (%s) by %s", n.ID, n.Type, n.Provenance.Producer)
//	    return nil
//	})
func Effect(name string, fn func(context.Context, *Node) error) pipz.Processor[*Node] {
	return pipz.Effect(pipz.Name(name), fn)
}

// -----------------------------------------------------------------------------
// Connectors - compose audit-node processors
// -----------------------------------------------------------------------------

// Sequence creates a sequential pipeline of node processors.
//
// Example:
//
//	sink := matriz.Sequence("archive-path", validate, archive.SaveStep())
func Sequence(name string, processors ...pipz.Chainable[*Node]) *pipz.Sequence[*Node] {
	return pipz.NewSequence(pipz.Name(name), processors...)
}

// Filter conditionally executes a processor; when the predicate is false the
// node passes through unchanged.
//
// Example:
//
//	onlyComputation := matriz.Filter("computation-only",
//	    func(ctx context.Context, n *matriz.Node) bool { return n.Type == matriz.NodeComputation },
//	    archiveStep,
//	)
func Filter(name string, predicate func(context.Context, *Node) bool, processor pipz.Chainable[*Node]) *pipz.Filter[*Node] {
	return pipz.NewFilter(pipz.Name(name), predicate, processor)
}

// Fallback tries alternatives on failure, in order, until one succeeds.
func Fallback(name string, processors ...pipz.Chainable[*Node]) *pipz.Fallback[*Node] {
	return pipz.NewFallback(pipz.Name(name), processors...)
}

// Retry retries a failed processor up to maxAttempts times with no delay.
func Retry(name string, processor pipz.Chainable[*Node], maxAttempts int) *pipz.Retry[*Node] {
	return pipz.NewRetry(pipz.Name(name), processor, maxAttempts)
}

// Backoff retries with exponential backoff. Useful for stores that need
// time to recover between attempts.
func Backoff(name string, processor pipz.Chainable[*Node], maxAttempts int, baseDelay time.Duration) *pipz.Backoff[*Node] {
	return pipz.NewBackoff(pipz.Name(name), processor, maxAttempts, baseDelay)
}

// Timeout enforces a time limit on a node processor.
func Timeout(name string, processor pipz.Chainable[*Node], duration time.Duration) *pipz.Timeout[*Node] {
	return pipz.NewTimeout(pipz.Name(name), processor, duration)
}

// Handle invokes an error handler when the primary processor fails, for
// monitoring, without altering the failure itself.
func Handle(name string, processor pipz.Chainable[*Node], errorHandler pipz.Chainable[*pipz.Error[*Node]]) *pipz.Handle[*Node] {
	return pipz.NewHandle(pipz.Name(name), processor, errorHandler)
}
