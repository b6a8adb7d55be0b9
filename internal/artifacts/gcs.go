package artifacts

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

func fetchGCS(ctx context.Context, rest string) (string, error) {
	bucket, object, err := bucketAndKey(rest)
	if err != nil {
		return "", err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("artifacts: create gcs client: %w", err)
	}
	defer client.Close()

	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return "", fmt.Errorf("artifacts: gcs read gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	path, err := stageToTempFile("gcs-artifact", reader)
	if err != nil {
		return "", err
	}

	log.Info("staged gcs model artifact", "bucket", bucket, "object", object, "path", path)
	return path, nil
}
