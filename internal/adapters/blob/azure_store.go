package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	azblobblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/zatekoja/handoff/backend/internal/domain/providers"
	"github.com/zatekoja/handoff/backend/internal/infrastructure/clients/blobstorage"
	apperrors "github.com/zatekoja/handoff/backend/pkg/errors"
)

// AzureStore implements BlobStore on an Azure Blob Storage container
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore creates a blob store backed by Azure
func NewAzureStore(client *blobstorage.Client) providers.BlobStore {
	return &AzureStore{client: client.Client(), container: client.Container()}
}

// Put uploads data, replacing any existing blob at path
func (s *AzureStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &azblobblob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, path, data, opts); err != nil {
		return apperrors.NewExternalError(fmt.Sprintf("failed to upload blob %s", path), err)
	}
	return nil
}

// Get downloads the blob at path
func (s *AzureStore) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, path, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("blob %s not found", path))
		}
		return nil, apperrors.NewTransientError(fmt.Sprintf("failed to download blob %s", path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransientError(fmt.Sprintf("failed to read blob %s", path), err)
	}
	return data, nil
}

// Exists reports whether a blob is present at path
func (s *AzureStore) Exists(ctx context.Context, path string) (bool, error) {
	blobClient := s.client.ServiceClient().NewContainerClient(s.container).NewBlobClient(path)
	_, err := blobClient.GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return false, nil
	}
	return false, apperrors.NewExternalError(fmt.Sprintf("failed to stat blob %s", path), err)
}
