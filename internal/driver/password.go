package driver

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/chainguard-dev/clog"
)

var (
	ErrPasswordDecrypt = errors.New("failed to decrypt administrator password")
	ErrPrivateKey      = errors.New("failed to load private key")
)

// fetchWindowsPassword waits for the encrypted administrator password to
// become available, then decrypts it with the instance's private key. The
// password data is RSA-encrypted against the key pair the instance was
// launched with, which is why auto-created key pairs are always RSA.
func (d *Driver) fetchWindowsPassword(ctx context.Context, state *State) error {
	log := clog.FromContext(ctx)

	var encrypted string
	err := d.waitWithDestroy(ctx, state, "administrator password", func(ctx context.Context) (bool, error) {
		out, err := d.api.GetPasswordData(ctx, &ec2.GetPasswordDataInput{
			InstanceId: aws.String(state.ServerID),
		})
		if err != nil {
			return false, err
		}
		data := strings.TrimSpace(aws.ToString(out.PasswordData))
		if data == "" {
			return false, nil
		}
		encrypted = data
		return true, nil
	})
	if err != nil {
		return err
	}

	keyPath := state.AutoKeyPath
	if keyPath == "" {
		keyPath = d.privateKeyPath()
	}
	key, err := loadRSAPrivateKey(keyPath)
	if err != nil {
		return err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordDecrypt, err)
	}
	plaintext, err := rsa.DecryptPKCS1v15(nil, key, ciphertext)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPasswordDecrypt, err)
	}
	state.Password = string(plaintext)
	log.Info("retrieved administrator password", "server_id", state.ServerID)
	return nil
}

func loadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrivateKey, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in %s", ErrPrivateKey, path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrivateKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an RSA key", ErrPrivateKey, path)
	}
	return key, nil
}
