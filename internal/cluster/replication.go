package cluster

// ReplicationFlow describes writer-to-reader replication between two members
type ReplicationFlow struct {
	SourceARN    string `json:"source_arn"`
	TargetARN    string `json:"target_arn"`
	SourceRegion string `json:"source_region"`
	TargetRegion string `json:"target_region"`
}

// ReplicationFlows returns one flow per reader member, sourced from the
// writer. A cluster without a writer has no flows.
func (d Descriptor) ReplicationFlows() []ReplicationFlow {
	writer, ok := d.Writer()
	if !ok {
		return []ReplicationFlow{}
	}

	flows := make([]ReplicationFlow, 0, len(d.Members)-1)
	for _, m := range d.Members {
		if m.Writer {
			continue
		}
		flows = append(flows, ReplicationFlow{
			SourceARN:    writer.ARN,
			TargetARN:    m.ARN,
			SourceRegion: writer.Region,
			TargetRegion: m.Region,
		})
	}
	return flows
}

// Topology pairs a descriptor with its replication flows
type Topology struct {
	Descriptor
	Flows []ReplicationFlow `json:"replication_flows"`
}

// NewTopology builds the topology view of a descriptor
func NewTopology(d Descriptor) Topology {
	return Topology{Descriptor: d, Flows: d.ReplicationFlows()}
}
