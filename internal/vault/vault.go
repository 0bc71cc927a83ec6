// Package vault is the secret store client. It owns the KV v2 mount that
// holds provider credentials, keyed by generated credential id. Credential
// payloads never touch either relational store; this package is the only
// writer and the only deleter.
package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

const (
	authTypeToken   = "token"
	authTypeAppRole = "approle"

	defaultMount   = "connectors"
	defaultTimeout = 30 * time.Second
)

type Options struct {
	Address          string
	Namespace        string
	Mount            string
	AuthType         string
	Token            string
	AppRoleMountPath string
	AppRoleRoleID    string
	AppRoleSecretID  string
}

// Client wraps a Vault KV v2 mount for credential create/delete.
type Client struct {
	kv    *vaultapi.KVv2
	mount string
}

func New(opts Options) (*Client, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	authType := strings.ToLower(strings.TrimSpace(opts.AuthType))
	if authType == "" {
		authType = authTypeToken
	}
	mount := strings.Trim(strings.TrimSpace(opts.Mount), "/")
	if mount == "" {
		mount = defaultMount
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = &http.Client{Timeout: defaultTimeout}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	if namespace := strings.TrimSpace(opts.Namespace); namespace != "" {
		client.SetNamespace(namespace)
	}

	switch authType {
	case authTypeToken:
		token := strings.TrimSpace(opts.Token)
		if token == "" {
			return nil, errors.New("vault token is required")
		}
		client.SetToken(token)
	case authTypeAppRole:
		roleID := strings.TrimSpace(opts.AppRoleRoleID)
		secretID := strings.TrimSpace(opts.AppRoleSecretID)
		mountPath := strings.Trim(strings.TrimSpace(opts.AppRoleMountPath), "/")
		if mountPath == "" {
			mountPath = "approle"
		}
		if roleID == "" {
			return nil, errors.New("vault AppRole role ID is required")
		}
		if secretID == "" {
			return nil, errors.New("vault AppRole secret ID is required")
		}
		loginPath := "auth/" + mountPath + "/login"
		secret, err := client.Logical().Write(loginPath, map[string]any{
			"role_id":   roleID,
			"secret_id": secretID,
		})
		if err != nil {
			return nil, fmt.Errorf("vault approle login at %s: %w", loginPath, err)
		}
		if secret == nil || secret.Auth == nil || strings.TrimSpace(secret.Auth.ClientToken) == "" {
			return nil, errors.New("vault approle login succeeded without client token")
		}
		client.SetToken(secret.Auth.ClientToken)
	default:
		return nil, errors.New("vault auth type is invalid")
	}

	return &Client{kv: client.KVv2(mount), mount: mount}, nil
}

// CreateCredential writes a provider credential payload under the given id.
// The label travels inside the secret data so a vault operator can tell which
// tenant/provider a stray credential belonged to.
func (c *Client) CreateCredential(ctx context.Context, id string, payload map[string]any, label string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("credential id is required")
	}
	data := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	if label = strings.TrimSpace(label); label != "" {
		data["label"] = label
	}
	if _, err := c.kv.Put(ctx, id, data); err != nil {
		return fmt.Errorf("vault write %s/%s: %w", c.mount, id, err)
	}
	return nil
}

// DeleteCredential removes every version of the credential. Deleting an id
// that was never written is not an error, which keeps saga compensation
// idempotent and retryable.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("credential id is required")
	}
	if err := c.kv.DeleteMetadata(ctx, id); err != nil {
		var respErr *vaultapi.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("vault delete %s/%s: %w", c.mount, id, err)
	}
	return nil
}
