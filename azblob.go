package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	mapset "github.com/deckarep/golang-set/v2"
	log "github.com/sirupsen/logrus"
)

type AzureBlobClient struct {
	Client    *azblob.Client
	Container string
}

func NewAzureBlobClient(azureConfig AzureConfig, credential azcore.TokenCredential) (BucketClient, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", azureConfig.StorageAccount)
	client, clientErr := azblob.NewClient(serviceURL, credential, nil)
	if clientErr != nil {
		return nil, fmt.Errorf("Error connecting to Azure Storage Account: %w", clientErr)
	}
	log.Info("Azure Storage Account connection successful.")

	return &AzureBlobClient{Client: client, Container: azureConfig.Container}, nil
}

func (a *AzureBlobClient) ListKeys(ctx context.Context) (mapset.Set[string], error) {
	keys := mapset.NewThreadUnsafeSet[string]()
	pager := a.Client.NewListBlobsFlatPager(a.Container, nil)
	for pager.More() {
		page, pageErr := pager.NextPage(ctx)
		if pageErr != nil {
			return keys, pageErr
		}
		for _, item := range page.Segment.BlobItems {
			keys.Add(*item.Name)
		}
	}

	return keys, nil
}

// UploadObject overwrites any existing blob with the same name.
func (a *AzureBlobClient) UploadObject(ctx context.Context, key string, body io.Reader, contentType string) error {
	_, uploadErr := a.Client.UploadStream(ctx, a.Container, key, body, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
	})
	return uploadErr
}

func (a *AzureBlobClient) DeleteObject(ctx context.Context, key string) error {
	_, delErr := a.Client.DeleteBlob(ctx, a.Container, key, nil)
	return delErr
}
