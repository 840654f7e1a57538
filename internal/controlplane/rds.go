package controlplane

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/FairForge/globalfailover/internal/cluster"
)

// FailoverMode selects how the RDS control plane promotes a secondary
type FailoverMode string

const (
	// ModeFailover promotes the secondary even if replication lags (data loss allowed)
	ModeFailover FailoverMode = "failover"
	// ModeSwitchover waits for the secondary to catch up before promoting
	ModeSwitchover FailoverMode = "switchover"
)

// throttlingCodes are API error codes that signal a transient condition
var throttlingCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"RequestLimitExceeded":      true,
	"TooManyRequestsException":  true,
	"ServiceUnavailable":        true,
	"InternalFailure":           true,
	"RequestThrottledException": true,
}

// RDSConfig configures the Aurora global database control plane
type RDSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Mode            FailoverMode
}

// rdsAPI is the subset of the RDS client used here
type rdsAPI interface {
	DescribeGlobalClusters(ctx context.Context, params *rds.DescribeGlobalClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeGlobalClustersOutput, error)
	FailoverGlobalCluster(ctx context.Context, params *rds.FailoverGlobalClusterInput, optFns ...func(*rds.Options)) (*rds.FailoverGlobalClusterOutput, error)
}

// RDSControlPlane talks to Amazon RDS for Aurora global databases
type RDSControlPlane struct {
	client rdsAPI
	mode   FailoverMode
	logger *zap.Logger
}

// NewRDSControlPlane builds an RDS client from the default AWS config chain,
// overridden by static credentials and a custom endpoint when given.
func NewRDSControlPlane(ctx context.Context, cfg RDSConfig, logger *zap.Logger) (*RDSControlPlane, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := rds.NewFromConfig(awsCfg, func(o *rds.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return newRDSControlPlane(client, cfg.Mode, logger), nil
}

func newRDSControlPlane(client rdsAPI, mode FailoverMode, logger *zap.Logger) *RDSControlPlane {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = ModeFailover
	}
	return &RDSControlPlane{client: client, mode: mode, logger: logger}
}

// ListGlobalClusters pages through DescribeGlobalClusters
func (c *RDSControlPlane) ListGlobalClusters(ctx context.Context) ([]cluster.Descriptor, error) {
	paginator := rds.NewDescribeGlobalClustersPaginator(c.client, &rds.DescribeGlobalClustersInput{})

	var descriptors []cluster.Descriptor
	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyError("list global clusters", "", err)
		}
		pages++
		for _, gc := range page.GlobalClusters {
			descriptors = append(descriptors, toDescriptor(gc))
		}
	}

	c.logger.Debug("listed global clusters",
		zap.Int("clusters", len(descriptors)),
		zap.Int("pages", pages))
	return descriptors, nil
}

// DescribeCluster reads one global cluster by identifier
func (c *RDSControlPlane) DescribeCluster(ctx context.Context, id cluster.Identifier) (cluster.Descriptor, error) {
	out, err := c.client.DescribeGlobalClusters(ctx, &rds.DescribeGlobalClustersInput{
		GlobalClusterIdentifier: aws.String(string(id)),
	})
	if err != nil {
		return cluster.Descriptor{}, classifyError("describe global cluster", id, err)
	}

	for _, gc := range out.GlobalClusters {
		if aws.ToString(gc.GlobalClusterIdentifier) == string(id) {
			return toDescriptor(gc), nil
		}
	}
	return cluster.Descriptor{}, fmt.Errorf("%s: %w", id, ErrClusterNotFound)
}

// RequestFailover resolves targetRegion to the secondary member cluster in
// that region and submits FailoverGlobalCluster for it.
func (c *RDSControlPlane) RequestFailover(ctx context.Context, id cluster.Identifier, targetRegion string) error {
	desc, err := c.DescribeCluster(ctx, id)
	if err != nil {
		return err
	}

	if desc.CurrentPrimaryRegion == targetRegion {
		return &CommandRejectedError{
			Cluster: id,
			Code:    "AlreadyPrimary",
			Message: fmt.Sprintf("primary is already in %s", targetRegion),
		}
	}

	target, ok := desc.MemberInRegion(targetRegion)
	if !ok {
		return &CommandRejectedError{
			Cluster: id,
			Code:    "NoTargetMember",
			Message: fmt.Sprintf("no secondary cluster in %s", targetRegion),
		}
	}

	input := &rds.FailoverGlobalClusterInput{
		GlobalClusterIdentifier:   aws.String(string(id)),
		TargetDbClusterIdentifier: aws.String(target.ARN),
	}
	switch c.mode {
	case ModeSwitchover:
		input.Switchover = aws.Bool(true)
	default:
		input.AllowDataLoss = aws.Bool(true)
	}

	if _, err := c.client.FailoverGlobalCluster(ctx, input); err != nil {
		return classifyError("failover global cluster", id, err)
	}

	c.logger.Info("failover accepted",
		zap.String("cluster", string(id)),
		zap.String("target_region", targetRegion),
		zap.String("target_arn", target.ARN),
		zap.String("mode", string(c.mode)))
	return nil
}

func toDescriptor(gc types.GlobalCluster) cluster.Descriptor {
	d := cluster.Descriptor{
		Identifier: cluster.Identifier(aws.ToString(gc.GlobalClusterIdentifier)),
		RawStatus:  aws.ToString(gc.Status),
		Engine:     aws.ToString(gc.Engine),
	}
	d.Status = cluster.ParseStatus(d.RawStatus)

	// A failover in flight can still report "available" at the top level.
	if fs := gc.FailoverState; fs != nil {
		switch string(fs.Status) {
		case "pending", "failing-over", "cancelling":
			d.Status = cluster.StatusFailingOver
		}
	}

	for _, m := range gc.GlobalClusterMembers {
		d.Members = append(d.Members, cluster.NewMember(aws.ToString(m.DBClusterArn), aws.ToBool(m.IsWriter)))
	}

	d.CurrentPrimaryRegion = cluster.UnknownRegion
	if w, ok := d.Writer(); ok {
		d.CurrentPrimaryRegion = w.Region
	}
	return d
}

// classifyError maps SDK errors onto the control plane taxonomy. Context
// errors pass through untouched so callers can tell cancellation apart.
func classifyError(op string, id cluster.Identifier, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var notFound *types.GlobalClusterNotFoundFault
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", id, ErrClusterNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if throttlingCodes[apiErr.ErrorCode()] {
			return &TransportError{Op: op, Err: err}
		}
		if op == "failover global cluster" {
			return &CommandRejectedError{
				Cluster: id,
				Code:    apiErr.ErrorCode(),
				Message: apiErr.ErrorMessage(),
			}
		}
	}

	return &TransportError{Op: op, Err: err}
}
