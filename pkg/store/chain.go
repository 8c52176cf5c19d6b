package store

import (
	"errors"

	"github.com/fystack/draw-engine/pkg/common/types"
)

// WalkChain follows parent links from the member's direct agent. A missing
// agent or a cycle ends the walk and marks the chain broken; lookup must
// return types.ErrNotFound for unknown ids.
func WalkChain(m types.Member, lookup func(id string) (types.Agent, error)) (types.AgentChain, error) {
	chain := types.AgentChain{MemberID: m.ID, Market: m.Market}
	seen := make(map[string]bool)
	next := m.AgentID
	for next != "" {
		if seen[next] {
			chain.Broken, chain.BrokenAt = true, next
			break
		}
		seen[next] = true
		a, err := lookup(next)
		if errors.Is(err, types.ErrNotFound) {
			chain.Broken, chain.BrokenAt = true, next
			break
		}
		if err != nil {
			return chain, err
		}
		chain.Agents = append(chain.Agents, a)
		next = a.ParentID
	}
	return chain, nil
}
