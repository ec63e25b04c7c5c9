package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// UploadFile streams a local file to the key, switching to a multipart upload
// when the file is large enough to benefit from it.
func (c *Client) UploadFile(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}
	size := info.Size()

	if size > 2*MinPartSizeBytes {
		return c.UploadMultipart(ctx, key, f, MinPartSizeBytes)
	}
	return c.PutObject(ctx, key, f, size)
}

// DownloadFile fetches a key into a local file, creating parent directories.
func (c *Client) DownloadFile(ctx context.Context, key, localPath string) error {
	body, err := c.GetObject(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", localPath, err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(localPath)
		return fmt.Errorf("write %s: %w", localPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", localPath, err)
	}
	return nil
}

func (c *Client) UploadMultipart(ctx context.Context, key string, body io.Reader, partSizeBytes int64) error {
	if partSizeBytes < MinPartSizeBytes {
		partSizeBytes = MinPartSizeBytes
	}
	fullKey := c.Key(key)

	createOut, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		return fmt.Errorf("create multipart upload: %w", err)
	}
	uploadID := createOut.UploadId
	defer func() {
		if uploadID != nil {
			_, _ = c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
				Bucket:   aws.String(c.bucket),
				Key:      aws.String(fullKey),
				UploadId: uploadID,
			})
		}
	}()

	var completed []types.CompletedPart
	partNumber := int32(1)
	buf := make([]byte, partSizeBytes)

	for {
		n, readErr := io.ReadFull(body, buf)
		if n == 0 && readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("read part: %w", readErr)
		}
		if n == 0 {
			break
		}

		uploadOut, err := c.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(c.bucket),
			Key:           aws.String(fullKey),
			UploadId:      uploadID,
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
		})
		if err != nil {
			return fmt.Errorf("upload part %d: %w", partNumber, err)
		}
		completed = append(completed, types.CompletedPart{
			ETag:       uploadOut.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++

		if readErr == io.EOF || (readErr == io.ErrUnexpectedEOF && n < len(buf)) {
			break
		}
	}

	if len(completed) == 0 {
		return fmt.Errorf("no parts uploaded")
	}

	_, err = c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(fullKey),
		UploadId: uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	uploadID = nil
	return nil
}
