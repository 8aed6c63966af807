package driver

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// ErrUnknownInterface is a configuration error: the interface option named
// something other than dns, public, private or private_dns.
var ErrUnknownInterface = errors.New("invalid interface option")

// Hostname picks the address the harness should connect to. With no
// explicit interface type the order is public DNS, public IP, private IP,
// private DNS, first non-empty wins. EC2 reports unpopulated DNS fields as
// empty strings rather than nulls, so empty is treated as absent.
func Hostname(instance types.Instance, interfaceType string) (string, error) {
	switch interfaceType {
	case "dns":
		return aws.ToString(instance.PublicDnsName), nil
	case "public":
		return aws.ToString(instance.PublicIpAddress), nil
	case "private":
		return aws.ToString(instance.PrivateIpAddress), nil
	case "private_dns":
		return aws.ToString(instance.PrivateDnsName), nil
	case "":
		for _, candidate := range []*string{
			instance.PublicDnsName,
			instance.PublicIpAddress,
			instance.PrivateIpAddress,
			instance.PrivateDnsName,
		} {
			if v := aws.ToString(candidate); v != "" {
				return v, nil
			}
		}
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownInterface, interfaceType)
	}
}
