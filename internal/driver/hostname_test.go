package driver

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostname(t *testing.T) {
	full := types.Instance{
		PublicDnsName:    aws.String("public.dns"),
		PublicIpAddress:  aws.String("54.1.2.3"),
		PrivateIpAddress: aws.String("10.0.0.5"),
		PrivateDnsName:   aws.String("private.dns"),
	}
	privateOnly := types.Instance{
		PrivateIpAddress: aws.String("10.0.0.5"),
		PrivateDnsName:   aws.String("private.dns"),
	}

	for _, tc := range []struct {
		name  string
		inst  types.Instance
		iface string
		want  string
	}{
		{"default prefers public dns", full, "", "public.dns"},
		{"default falls back to public ip", types.Instance{PublicIpAddress: aws.String("54.1.2.3"), PrivateIpAddress: aws.String("10.0.0.5")}, "", "54.1.2.3"},
		{"default falls back to private ip", privateOnly, "", "10.0.0.5"},
		// EC2 reports unpopulated DNS fields as "" rather than null.
		{"empty public dns treated as absent", types.Instance{PublicDnsName: aws.String(""), PrivateIpAddress: aws.String("10.0.0.5")}, "", "10.0.0.5"},
		{"default falls back to private dns", types.Instance{PrivateDnsName: aws.String("private.dns")}, "", "private.dns"},
		{"explicit dns", full, "dns", "public.dns"},
		{"explicit public", full, "public", "54.1.2.3"},
		{"explicit private", full, "private", "10.0.0.5"},
		{"explicit private_dns", full, "private_dns", "private.dns"},
		{"nothing assigned yet", types.Instance{}, "", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Hostname(tc.inst, tc.iface)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := Hostname(full, "bogus")
	assert.ErrorIs(t, err, ErrUnknownInterface)
}
