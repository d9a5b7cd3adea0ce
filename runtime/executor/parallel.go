package executor

import (
	"context"
	"sync"

	"goa.design/maestro/runtime/action"
	"goa.design/maestro/runtime/dag"
)

// runParallel executes the graph level by level. Within a level steps are
// partitioned into waves so no two steps with conflicting resource
// declarations run concurrently; each wave runs up to the configured
// parallelism at once. The first terminal failure stops scheduling.
func (x *Executor) runParallel(ctx context.Context, g *dag.Graph, byID map[string]*Executable, ec *action.Context, runID, planInv string) error {
	for _, level := range g.Levels() {
		for _, wave := range partitionWaves(level) {
			if ctx.Err() != nil {
				e := byID[wave[0].StepID]
				return x.planError(runID, e, &CancelledError{StepID: e.StepID})
			}
			if err := x.runWave(ctx, wave, byID, ec, runID, planInv); err != nil {
				return err
			}
		}
	}
	return nil
}

// runWave runs one conflict-free wave concurrently, bounded by the
// executor's parallelism. Every started step completes before the wave
// returns; the first failure wins and stops further starts.
func (x *Executor) runWave(ctx context.Context, wave []*dag.Node, byID map[string]*Executable, ec *action.Context, runID, planInv string) error {
	sem := make(chan struct{}, x.parallelism)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for _, n := range wave {
		e := byID[n.StepID]
		if failed() {
			break
		}
		if ctx.Err() != nil {
			fail(x.planError(runID, e, &CancelledError{StepID: e.StepID}))
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := x.runNode(ctx, e, ec, runID, planInv); err != nil {
				fail(x.planError(runID, e, err))
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// partitionWaves greedily groups a level's nodes into waves whose resource
// declarations do not conflict. Nodes keep their level order within each
// wave.
func partitionWaves(level []*dag.Node) [][]*dag.Node {
	var waves [][]*dag.Node
	for _, n := range level {
		placed := false
		for i, wave := range waves {
			if !conflictsWithWave(n, wave) {
				waves[i] = append(wave, n)
				placed = true
				break
			}
		}
		if !placed {
			waves = append(waves, []*dag.Node{n})
		}
	}
	return waves
}

func conflictsWithWave(n *dag.Node, wave []*dag.Node) bool {
	for _, m := range wave {
		if conflicts(n.Meta, m.Meta) {
			return true
		}
	}
	return false
}

// conflicts reports whether two steps touch a shared resource in a way
// that forbids concurrent execution: two writers of one resource, or a
// reader and a writer of one resource.
func conflicts(a, b dag.Metadata) bool {
	return overlaps(a.ResourceWrites, b.ResourceWrites) ||
		overlaps(a.ResourceWrites, b.ResourceReads) ||
		overlaps(a.ResourceReads, b.ResourceWrites)
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
