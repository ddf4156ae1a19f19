package blobstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/handoff/backend/pkg/config"
)

// Client wraps an Azure Blob Storage client bound to one container
type Client struct {
	client    *azblob.Client
	container string
}

// NewClient authenticates with a connection string when one is configured,
// otherwise with the default Azure credential chain against AccountURL.
func NewClient(ctx context.Context, cfg *config.BlobConfig) (*Client, error) {
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries: 3,
				TryTimeout: 30 * time.Second,
			},
		},
	}

	var (
		client *azblob.Client
		err    error
	)
	if cfg.ConnectionString != "" {
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
	} else {
		var cred azcore.TokenCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain Azure credential: %w", err)
		}
		client, err = azblob.NewClient(cfg.AccountURL, cred, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	c := &Client{client: client, container: cfg.Container}
	if err := c.ensureContainer(ctx); err != nil {
		return nil, err
	}

	log.Info().Str("container", cfg.Container).Msg("Azure Blob Storage ready")
	return c, nil
}

func (c *Client) ensureContainer(ctx context.Context) error {
	_, err := c.client.CreateContainer(ctx, c.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %s: %w", c.container, err)
	}
	return nil
}

// Client returns the SDK client
func (c *Client) Client() *azblob.Client {
	return c.client
}

// Container returns the container audio is written to
func (c *Client) Container() string {
	return c.container
}
