// Package comm provides the collective reduction the assembly driver uses to
// combine per-partition quantities, in-process or across processes.
package comm

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	ErrAborted     = errors.New("reduction group aborted")
	ErrInvalidRank = errors.New("invalid rank")
)

// Reducer sums one value from every rank and hands the total to all of them.
// Every rank must call AllReduceSum the same number of times.
type Reducer interface {
	Rank() int
	Size() int
	AllReduceSum(ctx context.Context, v float64) (float64, error)
}

// Single is the reducer of a run with one partition.
type Single struct{}

func (Single) Rank() int { return 0 }
func (Single) Size() int { return 1 }

func (Single) AllReduceSum(_ context.Context, v float64) (float64, error) { return v, nil }

// round is one generation of a Group reduction.
type round struct {
	done chan struct{}
	sum  float64
	err  error
}

// Group reduces across goroutines. Values are summed in rank order so every
// generation is deterministic.
type Group struct {
	mu      sync.Mutex
	values  []float64
	arrived int
	cur     *round
	err     error
}

func NewGroup(size int) *Group {
	if size < 1 {
		size = 1
	}
	return &Group{values: make([]float64, size), cur: &round{done: make(chan struct{})}}
}

func (g *Group) Size() int { return len(g.values) }

// Member returns the reducer of one rank.
func (g *Group) Member(rank int) Reducer {
	return &member{g: g, rank: rank}
}

// Abort fails the pending and all later reductions.
func (g *Group) Abort(err error) {
	if err == nil {
		err = ErrAborted
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return
	}
	g.err = err
	g.cur.err = err
	close(g.cur.done)
}

func (g *Group) reduce(ctx context.Context, rank int, v float64) (float64, error) {
	if rank < 0 || rank >= len(g.values) {
		return 0, ErrInvalidRank
	}
	g.mu.Lock()
	if g.err != nil {
		g.mu.Unlock()
		return 0, g.err
	}
	r := g.cur
	g.values[rank] = v
	g.arrived++
	if g.arrived == len(g.values) {
		var sum float64
		for _, x := range g.values {
			sum += x
		}
		r.sum = sum
		g.arrived = 0
		g.cur = &round{done: make(chan struct{})}
		close(r.done)
		g.mu.Unlock()
		return sum, nil
	}
	g.mu.Unlock()

	select {
	case <-r.done:
		return r.sum, r.err
	case <-ctx.Done():
		g.Abort(ctx.Err())
		return 0, ctx.Err()
	}
}

type member struct {
	g    *Group
	rank int
}

func (m *member) Rank() int { return m.rank }
func (m *member) Size() int { return m.g.Size() }

func (m *member) AllReduceSum(ctx context.Context, v float64) (float64, error) {
	return m.g.reduce(ctx, m.rank, v)
}

// RunPartitions runs fn once per rank on its own goroutine, all sharing one
// Group. The first error aborts the group so no rank stays blocked in a
// reduction.
func RunPartitions(ctx context.Context, n int, fn func(ctx context.Context, r Reducer) error) error {
	group := NewGroup(n)
	eg, ctx := errgroup.WithContext(ctx)
	for rank := range group.Size() {
		eg.Go(func() error {
			if err := fn(ctx, group.Member(rank)); err != nil {
				group.Abort(err)
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}
