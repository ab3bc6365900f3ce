package migration

import "github.com/solidb/solidb/pkg/cluster"

// ClusterResolver adapts pkg/cluster.State to NodeResolver.
type ClusterResolver struct {
	Cluster *cluster.State
}

func (r *ClusterResolver) APIAddress(nodeID string) (string, bool) {
	m, ok := r.Cluster.Get(nodeID)
	if !ok {
		return "", false
	}
	return m.APIAddress, true
}
