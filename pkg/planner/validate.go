package planner

import (
	"errors"
	"fmt"

	"github.com/advisorkit/maestro/pkg/models"
)

var (
	// ErrUnknownDomain indicates a step names a domain the system has no
	// graph for.
	ErrUnknownDomain = errors.New("plan contains unknown domain")

	// ErrCyclicDependency indicates depends_on does not form a DAG.
	ErrCyclicDependency = errors.New("plan dependencies are cyclic")

	// ErrForwardDependency indicates a step depends on a domain that does
	// not appear earlier in the plan.
	ErrForwardDependency = errors.New("plan dependency target not satisfied")
)

// Validate checks plan invariants: every domain is known, every dependency
// target appears in parallel or earlier in sequential, and the dependency
// relation forms a DAG.
func Validate(plan *models.ExecutionPlan) error {
	available := make(map[models.Domain]struct{})

	for _, step := range plan.Parallel {
		if !models.ValidDomain(step.Domain) {
			return fmt.Errorf("%w: %q", ErrUnknownDomain, step.Domain)
		}
		if len(step.DependsOn) > 0 {
			return fmt.Errorf("parallel step %q must not declare dependencies", step.Domain)
		}
		available[step.Domain] = struct{}{}
	}

	for _, step := range plan.Sequential {
		if !models.ValidDomain(step.Domain) {
			return fmt.Errorf("%w: %q", ErrUnknownDomain, step.Domain)
		}
		for _, dep := range step.DependsOn {
			if dep == step.Domain {
				return fmt.Errorf("%w: %q depends on itself", ErrCyclicDependency, step.Domain)
			}
			if _, ok := available[dep]; !ok {
				return fmt.Errorf("%w: %q depends on %q", ErrForwardDependency, step.Domain, dep)
			}
		}
		available[step.Domain] = struct{}{}
	}

	return nil
}
