package controlplane

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/globalfailover/internal/cluster"
)

type fakeRDS struct {
	pages        [][]types.GlobalCluster
	describeErr  error
	failoverErr  error
	failoverReqs []*rds.FailoverGlobalClusterInput
}

func (f *fakeRDS) DescribeGlobalClusters(_ context.Context, in *rds.DescribeGlobalClustersInput, _ ...func(*rds.Options)) (*rds.DescribeGlobalClustersOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}

	if in.GlobalClusterIdentifier != nil {
		for _, page := range f.pages {
			for _, gc := range page {
				if aws.ToString(gc.GlobalClusterIdentifier) == *in.GlobalClusterIdentifier {
					return &rds.DescribeGlobalClustersOutput{GlobalClusters: []types.GlobalCluster{gc}}, nil
				}
			}
		}
		return nil, &types.GlobalClusterNotFoundFault{Message: aws.String("not found")}
	}

	idx := 0
	if in.Marker != nil {
		switch *in.Marker {
		case "page-1":
			idx = 1
		case "page-2":
			idx = 2
		}
	}
	out := &rds.DescribeGlobalClustersOutput{GlobalClusters: f.pages[idx]}
	if idx+1 < len(f.pages) {
		out.Marker = aws.String([]string{"page-1", "page-2"}[idx])
	}
	return out, nil
}

func (f *fakeRDS) FailoverGlobalCluster(_ context.Context, in *rds.FailoverGlobalClusterInput, _ ...func(*rds.Options)) (*rds.FailoverGlobalClusterOutput, error) {
	f.failoverReqs = append(f.failoverReqs, in)
	if f.failoverErr != nil {
		return nil, f.failoverErr
	}
	return &rds.FailoverGlobalClusterOutput{}, nil
}

func globalCluster(id, status string, members ...types.GlobalClusterMember) types.GlobalCluster {
	return types.GlobalCluster{
		GlobalClusterIdentifier: aws.String(id),
		Status:                  aws.String(status),
		Engine:                  aws.String("aurora-postgresql"),
		GlobalClusterMembers:    members,
	}
}

func member(arn string, writer bool) types.GlobalClusterMember {
	return types.GlobalClusterMember{DBClusterArn: aws.String(arn), IsWriter: aws.Bool(writer)}
}

func ordersCluster(status string) types.GlobalCluster {
	return globalCluster("orders", status,
		member("arn:aws:rds:us-east-1:1:cluster:orders-east", true),
		member("arn:aws:rds:us-west-2:1:cluster:orders-west", false),
	)
}

func TestRDSControlPlane_ListGlobalClusters(t *testing.T) {
	t.Run("exhausts pages", func(t *testing.T) {
		fake := &fakeRDS{pages: [][]types.GlobalCluster{
			{ordersCluster("available")},
			{globalCluster("billing", "modifying")},
			{globalCluster("audit", "failing-over")},
		}}
		cp := newRDSControlPlane(fake, "", nil)

		got, err := cp.ListGlobalClusters(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, cluster.Identifier("orders"), got[0].Identifier)
		assert.Equal(t, "us-east-1", got[0].CurrentPrimaryRegion)
		assert.Equal(t, cluster.StatusModifying, got[1].Status)
		assert.Equal(t, cluster.StatusFailingOver, got[2].Status)
		assert.Equal(t, cluster.UnknownRegion, got[2].CurrentPrimaryRegion)
	})

	t.Run("transport failure", func(t *testing.T) {
		fake := &fakeRDS{describeErr: errors.New("connection reset")}
		cp := newRDSControlPlane(fake, "", nil)

		_, err := cp.ListGlobalClusters(context.Background())
		require.Error(t, err)
		assert.True(t, IsTransport(err))
	})
}

func TestRDSControlPlane_DescribeCluster(t *testing.T) {
	t.Run("in-flight failover state wins over top level status", func(t *testing.T) {
		gc := ordersCluster("available")
		gc.FailoverState = &types.FailoverState{Status: types.FailoverStatus("failing-over")}
		cp := newRDSControlPlane(&fakeRDS{pages: [][]types.GlobalCluster{{gc}}}, "", nil)

		d, err := cp.DescribeCluster(context.Background(), "orders")
		require.NoError(t, err)
		assert.Equal(t, cluster.StatusFailingOver, d.Status)
		assert.Equal(t, "available", d.RawStatus)
	})

	t.Run("missing cluster", func(t *testing.T) {
		cp := newRDSControlPlane(&fakeRDS{pages: [][]types.GlobalCluster{{}}}, "", nil)

		_, err := cp.DescribeCluster(context.Background(), "ghost")
		assert.ErrorIs(t, err, ErrClusterNotFound)
	})

	t.Run("throttling is transient", func(t *testing.T) {
		fake := &fakeRDS{describeErr: &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}}
		cp := newRDSControlPlane(fake, "", nil)

		_, err := cp.DescribeCluster(context.Background(), "orders")
		assert.True(t, IsTransport(err))
	})

	t.Run("context cancellation passes through", func(t *testing.T) {
		fake := &fakeRDS{describeErr: context.Canceled}
		cp := newRDSControlPlane(fake, "", nil)

		_, err := cp.DescribeCluster(context.Background(), "orders")
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsTransport(err))
	})
}

func TestRDSControlPlane_RequestFailover(t *testing.T) {
	t.Run("targets the secondary in the requested region", func(t *testing.T) {
		fake := &fakeRDS{pages: [][]types.GlobalCluster{{ordersCluster("available")}}}
		cp := newRDSControlPlane(fake, ModeFailover, nil)

		err := cp.RequestFailover(context.Background(), "orders", "us-west-2")
		require.NoError(t, err)
		require.Len(t, fake.failoverReqs, 1)
		req := fake.failoverReqs[0]
		assert.Equal(t, "orders", aws.ToString(req.GlobalClusterIdentifier))
		assert.Equal(t, "arn:aws:rds:us-west-2:1:cluster:orders-west", aws.ToString(req.TargetDbClusterIdentifier))
		assert.True(t, aws.ToBool(req.AllowDataLoss))
		assert.Nil(t, req.Switchover)
	})

	t.Run("switchover mode", func(t *testing.T) {
		fake := &fakeRDS{pages: [][]types.GlobalCluster{{ordersCluster("available")}}}
		cp := newRDSControlPlane(fake, ModeSwitchover, nil)

		require.NoError(t, cp.RequestFailover(context.Background(), "orders", "us-west-2"))
		assert.True(t, aws.ToBool(fake.failoverReqs[0].Switchover))
		assert.Nil(t, fake.failoverReqs[0].AllowDataLoss)
	})

	t.Run("no member in region is rejected locally", func(t *testing.T) {
		fake := &fakeRDS{pages: [][]types.GlobalCluster{{ordersCluster("available")}}}
		cp := newRDSControlPlane(fake, "", nil)

		err := cp.RequestFailover(context.Background(), "orders", "ap-southeast-2")
		assert.True(t, IsRejected(err))
		assert.Empty(t, fake.failoverReqs)
	})

	t.Run("already primary is rejected locally", func(t *testing.T) {
		fake := &fakeRDS{pages: [][]types.GlobalCluster{{ordersCluster("available")}}}
		cp := newRDSControlPlane(fake, "", nil)

		err := cp.RequestFailover(context.Background(), "orders", "us-east-1")
		var rejected *CommandRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "AlreadyPrimary", rejected.Code)
		assert.Empty(t, fake.failoverReqs)
	})

	t.Run("remote rejection carries the remote text", func(t *testing.T) {
		fake := &fakeRDS{
			pages:       [][]types.GlobalCluster{{ordersCluster("available")}},
			failoverErr: &smithy.GenericAPIError{Code: "InvalidGlobalClusterStateFault", Message: "cluster is already failing over"},
		}
		cp := newRDSControlPlane(fake, "", nil)

		err := cp.RequestFailover(context.Background(), "orders", "us-west-2")
		var rejected *CommandRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "InvalidGlobalClusterStateFault", rejected.Code)
		assert.Contains(t, err.Error(), "cluster is already failing over")
	})
}
