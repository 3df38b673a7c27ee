// Package aws implements the resource-provider capability for the AWS
// resources of a managed-cluster topology: VPC networking, EKS cluster,
// node groups, cluster add-ons, and IAM roles for service accounts.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/gantry-io/gantry/internal/provider"
)

const (
	KindVpc       = "aws.vpc"
	KindSubnet    = "aws.subnet"
	KindCluster   = "aws.eks_cluster"
	KindNodeGroup = "aws.node_group"
	KindAddon     = "aws.eks_addon"
	KindOidcRole  = "aws.oidc_role"
)

// schemas declares, per kind, the attributes whose change forces
// replacement under the AWS API contract.
var schemas = map[string]provider.Schema{
	KindVpc:       {ImmutableAttrs: []string{"cidrBlock"}},
	KindSubnet:    {ImmutableAttrs: []string{"vpcId", "cidrBlock", "availabilityZone"}},
	KindCluster:   {ImmutableAttrs: []string{"name", "roleArn", "subnetIds"}},
	KindNodeGroup: {ImmutableAttrs: []string{"clusterName", "nodeRoleArn", "subnetIds", "instanceTypes"}},
	KindAddon:     {ImmutableAttrs: []string{"clusterName", "addonName"}},
	KindOidcRole:  {ImmutableAttrs: []string{"name"}},
}

type Provider struct {
	Region string

	mu        sync.Mutex
	ec2Client *ec2.Client
	eksClient *eks.Client
	iamClient *iam.Client
}

func New(region string) *Provider {
	return &Provider{Region: region}
}

func (p *Provider) Schema(kind string) (provider.Schema, error) {
	s, ok := schemas[kind]
	if !ok {
		return provider.Schema{}, fmt.Errorf("unknown kind %q", kind)
	}
	return s, nil
}

func (p *Provider) ensureClients(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ec2Client != nil {
		return nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if p.Region != "" {
		opts = append(opts, awsconfig.WithRegion(p.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}
	p.ec2Client = ec2.NewFromConfig(cfg)
	p.eksClient = eks.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return "", nil, err
	}
	switch kind {
	case KindVpc:
		return p.createVpc(ctx, attrs)
	case KindSubnet:
		return p.createSubnet(ctx, attrs)
	case KindCluster:
		return p.createCluster(ctx, attrs)
	case KindNodeGroup:
		return p.createNodeGroup(ctx, attrs)
	case KindAddon:
		return p.createAddon(ctx, attrs)
	case KindOidcRole:
		return p.createOidcRole(ctx, attrs)
	default:
		return "", nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func (p *Provider) Update(ctx context.Context, kind, handle string, attrs map[string]any) (map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, err
	}
	switch kind {
	case KindVpc:
		return p.updateVpc(ctx, handle, attrs)
	case KindSubnet:
		return p.updateSubnet(ctx, handle, attrs)
	case KindCluster:
		return p.updateCluster(ctx, handle, attrs)
	case KindNodeGroup:
		return p.updateNodeGroup(ctx, handle, attrs)
	case KindAddon:
		return p.updateAddon(ctx, handle, attrs)
	case KindOidcRole:
		return p.updateOidcRole(ctx, handle, attrs)
	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func (p *Provider) Delete(ctx context.Context, kind, handle string) error {
	if err := p.ensureClients(ctx); err != nil {
		return err
	}
	switch kind {
	case KindVpc:
		return p.deleteVpc(ctx, handle)
	case KindSubnet:
		return p.deleteSubnet(ctx, handle)
	case KindCluster:
		return p.deleteCluster(ctx, handle)
	case KindNodeGroup:
		return p.deleteNodeGroup(ctx, handle)
	case KindAddon:
		return p.deleteAddon(ctx, handle)
	case KindOidcRole:
		return p.deleteOidcRole(ctx, handle)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
}

// decode maps a resolved attribute tree onto a typed config struct.
func decode(attrs map[string]any, into any) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	return nil
}
