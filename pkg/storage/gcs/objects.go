package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const uploadBase = "https://storage.googleapis.com/upload/storage/v1"

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo mirrors the fields the JSON API returns for an object. Size
// arrives as a decimal string, matching the wire format.
type ObjectInfo struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

// Upload stores data under objectName using a simple media upload and
// returns the resulting object metadata.
func (b *Bucket) Upload(ctx context.Context, objectName, contentType string, data []byte) (*ObjectInfo, error) {
	if err := b.ready(objectName); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	endpoint := fmt.Sprintf("%s/b/%s/o?uploadType=media&name=%s",
		uploadBase, url.PathEscape(b.name), url.QueryEscape(objectName))
	resp, err := b.client.do(ctx, http.MethodPost, endpoint, contentType, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("uploading object %s: %w", objectName, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(fmt.Sprintf("upload of %s", objectName), resp)
	}

	var info ObjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	return &info, nil
}

// Download fetches the full contents of objectName. A missing object maps
// to ErrObjectNotFound.
func (b *Bucket) Download(ctx context.Context, objectName string) ([]byte, error) {
	if err := b.ready(objectName); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/b/%s/o/%s?alt=media",
		storageBase, url.PathEscape(b.name), url.PathEscape(objectName))
	resp, err := b.client.do(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, fmt.Errorf("downloading object %s: %w", objectName, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading object %s: %w", objectName, err)
		}
		return data, nil
	case http.StatusNotFound:
		return nil, ErrObjectNotFound
	default:
		return nil, responseError(fmt.Sprintf("download of %s", objectName), resp)
	}
}

// Delete removes objectName. Deleting an object that is already gone is
// not an error.
func (b *Bucket) Delete(ctx context.Context, objectName string) error {
	if err := b.ready(objectName); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/b/%s/o/%s",
		storageBase, url.PathEscape(b.name), url.PathEscape(objectName))
	resp, err := b.client.do(ctx, http.MethodDelete, endpoint, "", nil)
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", objectName, err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return responseError(fmt.Sprintf("delete of %s", objectName), resp)
	}
}

func (b *Bucket) ready(objectName string) error {
	if b == nil || b.client == nil {
		return errors.New("bucket not initialized")
	}
	if objectName == "" {
		return errors.New("object name is required")
	}
	return nil
}
