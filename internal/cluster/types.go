// Package cluster holds the data model shared by the control plane adapters
// and the failover orchestrator: global cluster identifiers, statuses,
// descriptors and the replication topology derived from them.
package cluster

import (
	"sort"
	"strings"
)

// Identifier names a global database cluster. Unique within one control plane.
type Identifier string

// String implements fmt.Stringer
func (id Identifier) String() string {
	return string(id)
}

// Status is the classified state of a global cluster
type Status string

const (
	StatusAvailable   Status = "available"
	StatusFailingOver Status = "failing-over"
	StatusModifying   Status = "modifying"
	StatusUnavailable Status = "unavailable"
	StatusUnknown     Status = "unknown"
)

// UnknownRegion is reported when a member ARN cannot be parsed
const UnknownRegion = "unknown-region"

// rawStatuses maps control plane status strings onto the classified set.
var rawStatuses = map[string]Status{
	"available":                           StatusAvailable,
	"failing-over":                        StatusFailingOver,
	"switching-over":                      StatusFailingOver,
	"modifying":                           StatusModifying,
	"upgrading":                           StatusModifying,
	"creating":                            StatusModifying,
	"unavailable":                         StatusUnavailable,
	"failed":                              StatusUnavailable,
	"deleting":                            StatusUnavailable,
	"inaccessible-encryption-credentials": StatusUnavailable,
}

// ParseStatus classifies a raw status string. Unrecognized values are unknown.
func ParseStatus(raw string) Status {
	if s, ok := rawStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusUnknown
}

// IsTerminal reports whether polling can stop on this status
func (s Status) IsTerminal() bool {
	return s == StatusAvailable || s == StatusUnavailable
}

// IsSuccess reports whether the status is the terminal-success state
func (s Status) IsSuccess() bool {
	return s == StatusAvailable
}

// IsFailure reports whether the status is a terminal-failure state
func (s Status) IsFailure() bool {
	return s == StatusUnavailable
}

// Member is one regional DB cluster attached to a global cluster
type Member struct {
	ARN    string `json:"arn"`
	Region string `json:"region"`
	Writer bool   `json:"writer"`
}

// Descriptor is a point-in-time read of a global cluster
type Descriptor struct {
	Identifier           Identifier `json:"identifier"`
	Status               Status     `json:"status"`
	RawStatus            string     `json:"raw_status,omitempty"`
	CurrentPrimaryRegion string     `json:"current_primary_region"`
	Engine               string     `json:"engine,omitempty"`
	Members              []Member   `json:"members,omitempty"`
}

// Writer returns the writer member, if any
func (d Descriptor) Writer() (Member, bool) {
	for _, m := range d.Members {
		if m.Writer {
			return m, true
		}
	}
	return Member{}, false
}

// MemberInRegion returns the first non-writer member located in region
func (d Descriptor) MemberInRegion(region string) (Member, bool) {
	for _, m := range d.Members {
		if !m.Writer && m.Region == region {
			return m, true
		}
	}
	return Member{}, false
}

// Regions returns the sorted set of regions hosting a member
func (d Descriptor) Regions() []string {
	seen := make(map[string]struct{}, len(d.Members))
	regions := make([]string, 0, len(d.Members))
	for _, m := range d.Members {
		if _, ok := seen[m.Region]; ok {
			continue
		}
		seen[m.Region] = struct{}{}
		regions = append(regions, m.Region)
	}
	sort.Strings(regions)
	return regions
}

// RegionFromARN extracts the region field of an ARN
// (arn:partition:service:region:account:resource).
func RegionFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) > 3 && parts[3] != "" {
		return parts[3]
	}
	return UnknownRegion
}

// NewMember builds a member, deriving its region from the ARN
func NewMember(arn string, writer bool) Member {
	return Member{ARN: arn, Region: RegionFromARN(arn), Writer: writer}
}
