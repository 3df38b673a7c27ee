package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// oidcRoleConfig describes an IAM role whose trust policy federates a
// cluster's OIDC identity provider to a Kubernetes service account.
type oidcRoleConfig struct {
	Name            string   `json:"name"`
	OidcProviderArn string   `json:"oidcProviderArn"`
	OidcIssuer      string   `json:"oidcIssuer"`
	Namespace       string   `json:"namespace"`
	ServiceAccount  string   `json:"serviceAccount"`
	PolicyArns      []string `json:"policyArns"`
}

func (p *Provider) createOidcRole(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg oidcRoleConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, err
	}

	trust, err := assumeRolePolicy(&cfg)
	if err != nil {
		return "", nil, err
	}
	resp, err := p.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(cfg.Name),
		AssumeRolePolicyDocument: aws.String(trust),
	})
	if err != nil {
		return "", nil, fmt.Errorf("create role %s: %w", cfg.Name, err)
	}

	for _, policyArn := range cfg.PolicyArns {
		_, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(cfg.Name),
			PolicyArn: aws.String(policyArn),
		})
		if err != nil {
			return cfg.Name, nil, fmt.Errorf("attach policy %s to role %s: %w", policyArn, cfg.Name, err)
		}
	}

	return cfg.Name, map[string]any{
		"name": cfg.Name,
		"arn":  aws.ToString(resp.Role.Arn),
	}, nil
}

func (p *Provider) updateOidcRole(ctx context.Context, handle string, attrs map[string]any) (map[string]any, error) {
	var cfg oidcRoleConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, err
	}

	trust, err := assumeRolePolicy(&cfg)
	if err != nil {
		return nil, err
	}
	_, err = p.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       aws.String(handle),
		PolicyDocument: aws.String(trust),
	})
	if err != nil {
		return nil, fmt.Errorf("update trust policy for role %s: %w", handle, err)
	}

	if err := p.syncRolePolicies(ctx, handle, cfg.PolicyArns); err != nil {
		return nil, err
	}

	resp, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(handle)})
	if err != nil {
		return nil, fmt.Errorf("get role %s: %w", handle, err)
	}
	return map[string]any{
		"name": handle,
		"arn":  aws.ToString(resp.Role.Arn),
	}, nil
}

func (p *Provider) deleteOidcRole(ctx context.Context, handle string) error {
	if err := p.syncRolePolicies(ctx, handle, nil); err != nil {
		return err
	}
	_, err := p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(handle)})
	if err != nil {
		return fmt.Errorf("delete role %s: %w", handle, err)
	}
	return nil
}

// syncRolePolicies makes the role's attached managed policies match want.
func (p *Provider) syncRolePolicies(ctx context.Context, role string, want []string) error {
	attached, err := p.iamClient.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(role),
	})
	if err != nil {
		return fmt.Errorf("list policies for role %s: %w", role, err)
	}

	wanted := make(map[string]bool, len(want))
	for _, arn := range want {
		wanted[arn] = true
	}
	current := make(map[string]bool, len(attached.AttachedPolicies))
	for _, ap := range attached.AttachedPolicies {
		arn := aws.ToString(ap.PolicyArn)
		current[arn] = true
		if !wanted[arn] {
			_, err := p.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
				RoleName:  aws.String(role),
				PolicyArn: aws.String(arn),
			})
			if err != nil {
				return fmt.Errorf("detach policy %s from role %s: %w", arn, role, err)
			}
		}
	}
	for _, arn := range want {
		if !current[arn] {
			_, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
				RoleName:  aws.String(role),
				PolicyArn: aws.String(arn),
			})
			if err != nil {
				return fmt.Errorf("attach policy %s to role %s: %w", arn, role, err)
			}
		}
	}
	return nil
}

func assumeRolePolicy(cfg *oidcRoleConfig) (string, error) {
	issuer := strings.TrimPrefix(cfg.OidcIssuer, "https://")
	sub := fmt.Sprintf("system:serviceaccount:%s:%s", cfg.Namespace, cfg.ServiceAccount)
	doc := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{{
			"Effect":    "Allow",
			"Principal": map[string]any{"Federated": cfg.OidcProviderArn},
			"Action":    "sts:AssumeRoleWithWebIdentity",
			"Condition": map[string]any{
				"StringEquals": map[string]any{
					issuer + ":sub": sub,
					issuer + ":aud": "sts.amazonaws.com",
				},
			},
		}},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode trust policy: %w", err)
	}
	return string(raw), nil
}
