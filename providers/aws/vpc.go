package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type vpcConfig struct {
	CidrBlock string            `json:"cidrBlock"`
	Tags      map[string]string `json:"tags"`
}

type subnetConfig struct {
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone"`
	MapPublicIPOnLaunch bool              `json:"mapPublicIpOnLaunch"`
	Tags                map[string]string `json:"tags"`
}

func (p *Provider) createVpc(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg vpcConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}

	resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: aws.String(cfg.CidrBlock),
	})
	if err != nil {
		return "", nil, fmt.Errorf("create VPC: %w", err)
	}
	id := aws.ToString(resp.Vpc.VpcId)

	if err := p.tagResource(ctx, id, cfg.Tags); err != nil {
		return id, nil, err
	}

	return id, map[string]any{
		"id":        id,
		"cidrBlock": cfg.CidrBlock,
	}, nil
}

func (p *Provider) updateVpc(ctx context.Context, handle string, attrs map[string]any) (map[string]any, error) {
	var cfg vpcConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	if err := p.tagResource(ctx, handle, cfg.Tags); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        handle,
		"cidrBlock": cfg.CidrBlock,
	}, nil
}

func (p *Provider) deleteVpc(ctx context.Context, handle string) error {
	_, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(handle)})
	if err != nil {
		return fmt.Errorf("delete VPC %s: %w", handle, err)
	}
	return nil
}

func (p *Provider) createSubnet(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg subnetConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}

	input := &ec2.CreateSubnetInput{
		VpcId:     aws.String(cfg.VpcID),
		CidrBlock: aws.String(cfg.CidrBlock),
	}
	if cfg.AvailabilityZone != "" {
		input.AvailabilityZone = aws.String(cfg.AvailabilityZone)
	}
	resp, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return "", nil, fmt.Errorf("create subnet: %w", err)
	}
	id := aws.ToString(resp.Subnet.SubnetId)

	if cfg.MapPublicIPOnLaunch {
		_, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(id),
			MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return id, nil, fmt.Errorf("set subnet public-ip attribute: %w", err)
		}
	}
	if err := p.tagResource(ctx, id, cfg.Tags); err != nil {
		return id, nil, err
	}

	return id, map[string]any{
		"id":    id,
		"vpcId": cfg.VpcID,
	}, nil
}

func (p *Provider) updateSubnet(ctx context.Context, handle string, attrs map[string]any) (map[string]any, error) {
	var cfg subnetConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}
	_, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            aws.String(handle),
		MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(cfg.MapPublicIPOnLaunch)},
	})
	if err != nil {
		return nil, fmt.Errorf("update subnet %s: %w", handle, err)
	}
	if err := p.tagResource(ctx, handle, cfg.Tags); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":    handle,
		"vpcId": cfg.VpcID,
	}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, handle string) error {
	_, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(handle)})
	if err != nil {
		return fmt.Errorf("delete subnet %s: %w", handle, err)
	}
	return nil
}

func (p *Provider) tagResource(ctx context.Context, id string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	ec2Tags := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		ec2Tags = append(ec2Tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      ec2Tags,
	})
	if err != nil {
		return fmt.Errorf("tag %s: %w", id, err)
	}
	return nil
}
