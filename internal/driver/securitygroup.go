package driver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

var (
	ErrSecurityGroupCreate = errors.New("failed to create security group")
	ErrSecurityGroupDelete = errors.New("failed to delete security group")
	ErrIngressAuthorize    = errors.New("failed to authorize security group ingress")
	ErrNoDefaultVPC        = errors.New("no default VPC found and no subnet configured")
	ErrSubnetLookup        = errors.New("failed to look up subnet VPC")
)

// ensureSecurityGroup creates a security group when the user configured
// neither ids nor a filter. It is scoped to the resolved subnet's VPC, or
// the account default VPC, and opens SSH plus both WinRM ports from the
// configured CIDR. The group is recorded on state as auto-owned and cached
// onto the config so the request builder picks it up.
func (d *Driver) ensureSecurityGroup(ctx context.Context, state *State) error {
	if len(d.cfg.SecurityGroupIDs) > 0 || d.cfg.SecurityGroupFilter != nil {
		return nil
	}
	log := clog.FromContext(ctx)

	vpcID, err := d.resolveVPC(ctx)
	if err != nil {
		return err
	}

	hostname, _ := os.Hostname()
	name := "kitchen-" + uuid.NewString()[:8]
	out, err := d.api.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(name),
		Description: aws.String(fmt.Sprintf("Test Kitchen for %s on %s", d.cfg.InstanceName, hostname)),
		VpcId:       aws.String(vpcID),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSecurityGroupCreate, err)
	}
	groupID := aws.ToString(out.GroupId)
	state.AutoSecurityGroupID = groupID
	d.cfg.SecurityGroupIDs = []string{groupID}
	log.Info("created security group", "id", groupID, "name", name, "vpc_id", vpcID)

	for _, port := range []int32{portSSH, portWinRM, portWinRMS} {
		_, err := d.api.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:    aws.String(groupID),
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int32(port),
			ToPort:     aws.Int32(port),
			CidrIp:     aws.String(d.cfg.SecurityGroupCIDRIP),
		})
		if err != nil {
			return fmt.Errorf("%w: port %d: %w", ErrIngressAuthorize, port, err)
		}
	}
	log.Info("authorized ingress", "from", d.cfg.SecurityGroupCIDRIP)
	return nil
}

// resolveVPC returns the VPC of the configured subnet, or the account
// default VPC when no subnet is configured.
func (d *Driver) resolveVPC(ctx context.Context) (string, error) {
	subnetID, err := d.builder.ResolveSubnetID(ctx)
	if err != nil {
		return "", err
	}
	if subnetID != "" {
		out, err := d.api.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
			SubnetIds: []string{subnetID},
		})
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrSubnetLookup, err)
		}
		if len(out.Subnets) == 0 {
			return "", fmt.Errorf("%w: subnet %s not found", ErrSubnetLookup, subnetID)
		}
		return aws.ToString(out.Subnets[0].VpcId), nil
	}

	out, err := d.api.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{{
			Name:   aws.String("isDefault"),
			Values: []string{"true"},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoDefaultVPC, err)
	}
	if len(out.Vpcs) == 0 {
		return "", ErrNoDefaultVPC
	}
	return aws.ToString(out.Vpcs[0].VpcId), nil
}

func (d *Driver) deleteSecurityGroup(ctx context.Context, groupID string) error {
	log := clog.FromContext(ctx)
	_, err := d.api.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(groupID),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSecurityGroupDelete, err)
	}
	log.Info("deleted security group", "id", groupID)
	return nil
}
