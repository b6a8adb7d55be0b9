package artifacts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func fetchS3(ctx context.Context, rest string) (string, error) {
	bucket, key, err := bucketAndKey(rest)
	if err != nil {
		return "", err
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("artifacts: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("artifacts: s3 GetObject s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	path, err := stageToTempFile("s3-artifact", out.Body)
	if err != nil {
		return "", err
	}

	log.Info("staged s3 model artifact", "bucket", bucket, "key", key, "path", path)
	return path, nil
}
