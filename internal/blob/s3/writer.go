package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Writer uploads archive objects. It is the concrete BlobWriter the archiver
// runs against in production; tests substitute an in-memory one.
type Writer struct {
	client *Client
}

// NewWriter builds a Writer over the given store client.
func NewWriter(c *Client) *Writer {
	return &Writer{client: c}
}

// Put uploads one archive object in a single request. Archive snapshots are
// a cycle's worth of journal entries, far below the single-request limit, so
// there is no multipart path.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.client.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.client.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}
