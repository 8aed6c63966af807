package driver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

var (
	ErrKeyPairCreate = errors.New("failed to create key pair")
	ErrKeyPairDelete = errors.New("failed to delete key pair")
	ErrKeyFileWrite  = errors.New("failed to write private key file")
)

// ensureKeyPair creates a key pair when none is configured. The name
// embeds the instance name, local user, hostname, timestamp and a random
// suffix for uniqueness and forensic traceability. The private key
// material is persisted with exclusive-create, owner-only permissions, and
// the key is recorded on state as auto-owned.
func (d *Driver) ensureKeyPair(ctx context.Context, state *State) error {
	if d.cfg.KeyName != "" {
		return nil
	}
	log := clog.FromContext(ctx)

	name := d.keyPairName()
	out, err := d.api.CreateKeyPair(ctx, &ec2.CreateKeyPairInput{
		KeyName: aws.String(name),
		// RSA so a Windows initial password can be decrypted with the
		// same key material.
		KeyType: types.KeyTypeRsa,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairCreate, err)
	}
	state.AutoKeyID = name
	d.cfg.KeyName = name
	log.Info("created key pair", "name", name)

	// The path is recorded on state so a later destroy can remove the file
	// even when the config it runs under derives a different one.
	path := d.privateKeyPath()
	if err := writeKeyFile(path, []byte(aws.ToString(out.KeyMaterial))); err != nil {
		return err
	}
	state.AutoKeyPath = path
	log.Info("saved private key", "path", path)
	return nil
}

func (d *Driver) keyPairName() string {
	localUser := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		localUser = u.Username
	}
	hostname, _ := os.Hostname()
	return "kitchen-" + slug.Make(d.cfg.InstanceName) +
		"-" + slug.Make(localUser) +
		"-" + slug.Make(hostname) +
		"-" + strconv.FormatInt(time.Now().Unix(), 10) +
		"-" + uuid.NewString()[:8]
}

// privateKeyPath is where the generated key material lives: the configured
// path, or a per-instance file under the kitchen root.
func (d *Driver) privateKeyPath() string {
	if d.cfg.PrivateKeyPath != "" {
		return d.cfg.PrivateKeyPath
	}
	return filepath.Join(d.cfg.KitchenRoot, ".kitchen", slug.Make(d.cfg.InstanceName)+".pem")
}

// writeKeyFile persists key material with O_EXCL so a pre-existing file is
// never clobbered, and 0600 so only the owner can read it.
func writeKeyFile(path string, material []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrKeyFileWrite, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyFileWrite, err)
	}
	if _, err := f.Write(material); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrKeyFileWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrKeyFileWrite, err)
	}
	return nil
}

func (d *Driver) deleteKeyPair(ctx context.Context, keyName, keyPath string) error {
	log := clog.FromContext(ctx)
	_, err := d.api.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{
		KeyName: aws.String(keyName),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrKeyPairDelete, err)
	}
	if path := keyPath; path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing key file: %w", ErrKeyPairDelete, err)
		}
	}
	log.Info("deleted key pair", "name", keyName)
	return nil
}
