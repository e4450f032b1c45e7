package store

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/chtzvt/rewardd/internal/secrets"
)

type AzureBlobStore struct {
	account   string
	container string
	prefix    string
	secrets   *secrets.Store

	mu     sync.Mutex
	client *azblob.Client
}

func NewAzureBlobStore(opts map[string]interface{}, sec *secrets.Store) (Store, error) {
	account, _ := opts["account"].(string)
	container, _ := opts["container"].(string)
	prefix, _ := opts["prefix"].(string)
	if account == "" || container == "" {
		return nil, fmt.Errorf("azureblob store requires 'account' and 'container' options")
	}
	if sec == nil {
		return nil, fmt.Errorf("azureblob store requires a secrets store for AZURE_STORAGE_KEY")
	}
	return &AzureBlobStore{
		account:   account,
		container: container,
		prefix:    prefix,
		secrets:   sec,
	}, nil
}

func (a *AzureBlobStore) getClient(ctx context.Context) (*azblob.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}
	key, err := a.secrets.Get(ctx, "AZURE_STORAGE_KEY")
	if err != nil {
		return nil, fmt.Errorf("missing AZURE_STORAGE_KEY in secrets: %w", err)
	}
	cred, err := azblob.NewSharedKeyCredential(a.account, string(key))
	if err != nil {
		return nil, fmt.Errorf("azure shared key credential error: %w", err)
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", a.account)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("azure blob client init error: %w", err)
	}
	a.client = client
	return client, nil
}

func (a *AzureBlobStore) List(ctx context.Context, prefix string) ([]Object, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}
	full := a.prefix + prefix
	pager := client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &full,
	})
	var objects []Object
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("azure list %s: %w", full, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			var size int64
			if item.Properties != nil && item.Properties.ContentLength != nil {
				size = *item.Properties.ContentLength
			}
			objects = append(objects, Object{
				Key:  strings.TrimPrefix(*item.Name, a.prefix),
				Size: size,
			})
		}
	}
	return objects, nil
}

func (a *AzureBlobStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	client, err := a.getClient(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := client.DownloadStream(ctx, a.container, a.prefix+key, nil)
	if err != nil {
		return nil, fmt.Errorf("azure get %s: %w", key, err)
	}
	return resp.Body, nil
}

func (a *AzureBlobStore) Put(ctx context.Context, key string, body io.Reader) error {
	client, err := a.getClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.UploadStream(ctx, a.container, a.prefix+key, body, nil); err != nil {
		return fmt.Errorf("azure put %s: %w", key, err)
	}
	return nil
}

func (a *AzureBlobStore) Delete(ctx context.Context, keys ...string) error {
	client, err := a.getClient(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, err := client.DeleteBlob(ctx, a.container, a.prefix+key, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
			return fmt.Errorf("azure delete %s: %w", key, err)
		}
	}
	return nil
}

func init() {
	Register("azureblob", NewAzureBlobStore)
}
