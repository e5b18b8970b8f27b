package partition

import (
	"fmt"
	"math"
)

// SelectOptimalSpiral picks the best partition of a (contentType,
// depthTag) group for a new entry, balancing spatial distance from the
// reference partition against current load.
//
// The reference partition is excluded from candidacy unless it is the
// only partition in the group. Partitions at nominal capacity are
// filtered out; if every candidate is full the least-loaded one is used
// anyway rather than failing — capacity is a soft ceiling, not a hard
// rejection. sizeHint is accepted for forward compatibility but does
// not currently tighten the filter beyond load < capacity.
//
// Cost per candidate: distance/maxDistance + load/capacity. Both terms
// are in [0,1], so neither dominates. Ties go to the earliest-created
// partition.
func (r *Registry) SelectOptimalSpiral(contentType, depthTag string, sizeHint int, referenceID string) (*Partition, error) {
	group := r.List(contentType, depthTag)
	if len(group) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoEligiblePartition, contentType, depthTag)
	}

	reference, err := r.Get(referenceID)
	if err != nil {
		return nil, err
	}

	candidates := make([]*Partition, 0, len(group))
	for _, p := range group {
		if p.ID == reference.ID {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		// The reference is the whole group; it is its own best option.
		candidates = group
	}

	eligible := make([]*Partition, 0, len(candidates))
	for _, p := range candidates {
		if !p.Full() {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return leastLoaded(candidates), nil
	}

	maxDistance := 0.0
	distances := make([]float64, len(eligible))
	for i, p := range eligible {
		distances[i] = euclidean(p.Position, reference.Position)
		if distances[i] > maxDistance {
			maxDistance = distances[i]
		}
	}

	var best *Partition
	bestCost := math.Inf(1)
	for i, p := range eligible {
		cost := float64(p.Load()) / p.Capacity
		if maxDistance > 0 {
			cost += distances[i] / maxDistance
		}
		if cost < bestCost || (cost == bestCost && best != nil && p.CreatedAt.Before(best.CreatedAt)) {
			best = p
			bestCost = cost
		}
	}
	return best, nil
}

func leastLoaded(group []*Partition) *Partition {
	best := group[0]
	for _, p := range group[1:] {
		if p.Load() < best.Load() ||
			(p.Load() == best.Load() && p.CreatedAt.Before(best.CreatedAt)) {
			best = p
		}
	}
	return best
}

func euclidean(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
