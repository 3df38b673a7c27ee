package aws

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/eks/types"
)

type clusterConfig struct {
	Name      string            `json:"name"`
	RoleArn   string            `json:"roleArn"`
	Version   string            `json:"version"`
	SubnetIDs []string          `json:"subnetIds"`
	Tags      map[string]string `json:"tags"`
}

type nodeGroupConfig struct {
	ClusterName   string            `json:"clusterName"`
	Name          string            `json:"name"`
	NodeRoleArn   string            `json:"nodeRoleArn"`
	SubnetIDs     []string          `json:"subnetIds"`
	InstanceTypes []string          `json:"instanceTypes"`
	MinSize       int32             `json:"minSize"`
	MaxSize       int32             `json:"maxSize"`
	DesiredSize   int32             `json:"desiredSize"`
	Labels        map[string]string `json:"labels"`
}

type addonConfig struct {
	ClusterName string `json:"clusterName"`
	AddonName   string `json:"addonName"`
	Version     string `json:"version"`
}

const clusterWaitTimeout = 30 * time.Minute

func (p *Provider) createCluster(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg clusterConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}

	input := &eks.CreateClusterInput{
		Name:    aws.String(cfg.Name),
		RoleArn: aws.String(cfg.RoleArn),
		ResourcesVpcConfig: &types.VpcConfigRequest{
			SubnetIds: cfg.SubnetIDs,
		},
		Tags: cfg.Tags,
	}
	if cfg.Version != "" {
		input.Version = aws.String(cfg.Version)
	}
	if _, err := p.eksClient.CreateCluster(ctx, input); err != nil {
		return "", nil, fmt.Errorf("create cluster %s: %w", cfg.Name, err)
	}

	waiter := eks.NewClusterActiveWaiter(p.eksClient)
	if err := waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(cfg.Name)}, clusterWaitTimeout); err != nil {
		return cfg.Name, nil, fmt.Errorf("wait for cluster %s: %w", cfg.Name, err)
	}

	outputs, err := p.clusterOutputs(ctx, cfg.Name)
	return cfg.Name, outputs, err
}

func (p *Provider) updateCluster(ctx context.Context, handle string, attrs map[string]any) (map[string]any, error) {
	var cfg clusterConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	if cfg.Version != "" {
		_, err := p.eksClient.UpdateClusterVersion(ctx, &eks.UpdateClusterVersionInput{
			Name:    aws.String(handle),
			Version: aws.String(cfg.Version),
		})
		if err != nil && !isNoChangeError(err) {
			return nil, fmt.Errorf("update cluster %s version: %w", handle, err)
		}
		waiter := eks.NewClusterActiveWaiter(p.eksClient)
		if err := waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(handle)}, clusterWaitTimeout); err != nil {
			return nil, fmt.Errorf("wait for cluster %s: %w", handle, err)
		}
	}
	return p.clusterOutputs(ctx, handle)
}

func (p *Provider) deleteCluster(ctx context.Context, handle string) error {
	if _, err := p.eksClient.DeleteCluster(ctx, &eks.DeleteClusterInput{Name: aws.String(handle)}); err != nil {
		return fmt.Errorf("delete cluster %s: %w", handle, err)
	}
	waiter := eks.NewClusterDeletedWaiter(p.eksClient)
	if err := waiter.Wait(ctx, &eks.DescribeClusterInput{Name: aws.String(handle)}, clusterWaitTimeout); err != nil {
		return fmt.Errorf("wait for cluster %s deletion: %w", handle, err)
	}
	return nil
}

func (p *Provider) clusterOutputs(ctx context.Context, name string) (map[string]any, error) {
	resp, err := p.eksClient.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		return nil, fmt.Errorf("describe cluster %s: %w", name, err)
	}
	c := resp.Cluster
	outputs := map[string]any{
		"name":     aws.ToString(c.Name),
		"arn":      aws.ToString(c.Arn),
		"endpoint": aws.ToString(c.Endpoint),
		"version":  aws.ToString(c.Version),
	}
	if c.Identity != nil && c.Identity.Oidc != nil {
		outputs["oidcIssuer"] = aws.ToString(c.Identity.Oidc.Issuer)
	}
	if c.CertificateAuthority != nil {
		outputs["certificateAuthority"] = aws.ToString(c.CertificateAuthority.Data)
	}
	return outputs, nil
}

// Node group handles are "cluster/nodegroup" composites.

func (p *Provider) createNodeGroup(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg nodeGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}

	input := &eks.CreateNodegroupInput{
		ClusterName:   aws.String(cfg.ClusterName),
		NodegroupName: aws.String(cfg.Name),
		NodeRole:      aws.String(cfg.NodeRoleArn),
		Subnets:       cfg.SubnetIDs,
		InstanceTypes: cfg.InstanceTypes,
		ScalingConfig: &types.NodegroupScalingConfig{
			MinSize:     aws.Int32(cfg.MinSize),
			MaxSize:     aws.Int32(cfg.MaxSize),
			DesiredSize: aws.Int32(cfg.DesiredSize),
		},
		Labels: cfg.Labels,
	}
	if _, err := p.eksClient.CreateNodegroup(ctx, input); err != nil {
		return "", nil, fmt.Errorf("create node group %s: %w", cfg.Name, err)
	}

	handle := cfg.ClusterName + "/" + cfg.Name
	waiter := eks.NewNodegroupActiveWaiter(p.eksClient)
	err := waiter.Wait(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(cfg.ClusterName),
		NodegroupName: aws.String(cfg.Name),
	}, clusterWaitTimeout)
	if err != nil {
		return handle, nil, fmt.Errorf("wait for node group %s: %w", cfg.Name, err)
	}

	return handle, nodeGroupOutputs(handle, &cfg), nil
}

func (p *Provider) updateNodeGroup(ctx context.Context, handle string, attrs map[string]any) (map[string]any, error) {
	var cfg nodeGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	cluster, name, err := splitHandle(handle)
	if err != nil {
		return nil, err
	}
	_, err = p.eksClient.UpdateNodegroupConfig(ctx, &eks.UpdateNodegroupConfigInput{
		ClusterName:   aws.String(cluster),
		NodegroupName: aws.String(name),
		ScalingConfig: &types.NodegroupScalingConfig{
			MinSize:     aws.Int32(cfg.MinSize),
			MaxSize:     aws.Int32(cfg.MaxSize),
			DesiredSize: aws.Int32(cfg.DesiredSize),
		},
		Labels: &types.UpdateLabelsPayload{AddOrUpdateLabels: cfg.Labels},
	})
	if err != nil {
		return nil, fmt.Errorf("update node group %s: %w", handle, err)
	}
	return nodeGroupOutputs(handle, &cfg), nil
}

func (p *Provider) deleteNodeGroup(ctx context.Context, handle string) error {
	cluster, name, err := splitHandle(handle)
	if err != nil {
		return err
	}
	_, err = p.eksClient.DeleteNodegroup(ctx, &eks.DeleteNodegroupInput{
		ClusterName:   aws.String(cluster),
		NodegroupName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete node group %s: %w", handle, err)
	}
	waiter := eks.NewNodegroupDeletedWaiter(p.eksClient)
	err = waiter.Wait(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(cluster),
		NodegroupName: aws.String(name),
	}, clusterWaitTimeout)
	if err != nil {
		return fmt.Errorf("wait for node group %s deletion: %w", handle, err)
	}
	return nil
}

func nodeGroupOutputs(handle string, cfg *nodeGroupConfig) map[string]any {
	return map[string]any{
		"id":          handle,
		"name":        cfg.Name,
		"clusterName": cfg.ClusterName,
		"desiredSize": cfg.DesiredSize,
	}
}

func (p *Provider) createAddon(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg addonConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}

	input := &eks.CreateAddonInput{
		ClusterName: aws.String(cfg.ClusterName),
		AddonName:   aws.String(cfg.AddonName),
	}
	if cfg.Version != "" {
		input.AddonVersion = aws.String(cfg.Version)
	}
	if _, err := p.eksClient.CreateAddon(ctx, input); err != nil {
		return "", nil, fmt.Errorf("create addon %s: %w", cfg.AddonName, err)
	}

	handle := cfg.ClusterName + "/" + cfg.AddonName
	waiter := eks.NewAddonActiveWaiter(p.eksClient)
	err := waiter.Wait(ctx, &eks.DescribeAddonInput{
		ClusterName: aws.String(cfg.ClusterName),
		AddonName:   aws.String(cfg.AddonName),
	}, clusterWaitTimeout)
	if err != nil {
		return handle, nil, fmt.Errorf("wait for addon %s: %w", cfg.AddonName, err)
	}

	return handle, map[string]any{"id": handle, "addonName": cfg.AddonName}, nil
}

func (p *Provider) updateAddon(ctx context.Context, handle string, attrs map[string]any) (map[string]any, error) {
	var cfg addonConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	cluster, name, err := splitHandle(handle)
	if err != nil {
		return nil, err
	}
	input := &eks.UpdateAddonInput{
		ClusterName: aws.String(cluster),
		AddonName:   aws.String(name),
	}
	if cfg.Version != "" {
		input.AddonVersion = aws.String(cfg.Version)
	}
	if _, err := p.eksClient.UpdateAddon(ctx, input); err != nil {
		return nil, fmt.Errorf("update addon %s: %w", handle, err)
	}
	return map[string]any{"id": handle, "addonName": name}, nil
}

func (p *Provider) deleteAddon(ctx context.Context, handle string) error {
	cluster, name, err := splitHandle(handle)
	if err != nil {
		return err
	}
	_, err = p.eksClient.DeleteAddon(ctx, &eks.DeleteAddonInput{
		ClusterName: aws.String(cluster),
		AddonName:   aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete addon %s: %w", handle, err)
	}
	return nil
}

func splitHandle(handle string) (cluster, name string, err error) {
	cluster, name, ok := strings.Cut(handle, "/")
	if !ok {
		return "", "", fmt.Errorf("malformed handle %q (want cluster/name)", handle)
	}
	return cluster, name, nil
}

// isNoChangeError reports the EKS rejection for an update that matches the
// current configuration.
func isNoChangeError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "No update needed")
}
