package driver

import (
	"context"

	"github.com/chainguard-dev/clog"
)

// State is the record the host harness owns and round-trips across calls.
// It is created empty, mutated incrementally through each provisioning
// phase, and partially cleared during teardown. A given State maps 1:1 to
// a single not-yet-destroyed instance attempt.
//
// Fields prefixed Auto mark resources this driver created on the user's
// behalf; the driver, not the user, must delete them on teardown.
type State struct {
	ServerID      string `json:"server_id,omitempty"`
	Hostname      string `json:"hostname,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	SpotRequestID string `json:"spot_request_id,omitempty"`

	AutoSecurityGroupID string `json:"auto_security_group_id,omitempty"`
	AutoKeyID           string `json:"auto_key_id,omitempty"`
	AutoKeyPath         string `json:"auto_key_path,omitempty"`
}

// resourceKind names a kind of auto-owned remote resource.
type resourceKind string

const (
	resourceSecurityGroup resourceKind = "security-group"
	resourceKeyPair       resourceKind = "key-pair"
)

// ownedResource is one (kind, id) ownership record. Deleting an owned
// resource is idempotent: a record whose state field was already cleared
// is never produced, and delete failures are reported, not fatal.
type ownedResource struct {
	Kind resourceKind
	ID   string
}

// ownedResources lists the auto-owned resources currently recorded on
// state, in deletion order.
func ownedResources(state *State) []ownedResource {
	var owned []ownedResource
	if state.AutoSecurityGroupID != "" {
		owned = append(owned, ownedResource{Kind: resourceSecurityGroup, ID: state.AutoSecurityGroupID})
	}
	if state.AutoKeyID != "" {
		owned = append(owned, ownedResource{Kind: resourceKeyPair, ID: state.AutoKeyID})
	}
	return owned
}

// cleanupOwned best-effort deletes every auto-owned resource. Secondary
// failures are logged and suppressed so they can never mask the primary
// error the caller is unwinding with.
func (d *Driver) cleanupOwned(ctx context.Context, state *State) {
	log := clog.FromContext(ctx)
	for _, owned := range ownedResources(state) {
		if err := d.deleteOwned(ctx, state, owned); err != nil {
			log.Warn("failed to clean up auto-created resource",
				"kind", owned.Kind,
				"id", owned.ID,
				"error", err,
			)
		}
	}
}

func (d *Driver) deleteOwned(ctx context.Context, state *State, owned ownedResource) error {
	switch owned.Kind {
	case resourceSecurityGroup:
		if err := d.deleteSecurityGroup(ctx, owned.ID); err != nil {
			return err
		}
		state.AutoSecurityGroupID = ""
	case resourceKeyPair:
		if err := d.deleteKeyPair(ctx, owned.ID, state.AutoKeyPath); err != nil {
			return err
		}
		state.AutoKeyID = ""
		state.AutoKeyPath = ""
	}
	return nil
}
