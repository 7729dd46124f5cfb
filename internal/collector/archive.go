package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dag-upb/ts-arena-core/internal/adapter"
)

// ArchiveClient uploads raw, pre-imputation adapter payloads to S3 so
// operators have a replay path if a downstream bug corrupts the operational
// tables. Path-style addressing keeps MinIO-compatible endpoints working.
type ArchiveClient struct {
	client *s3.Client
	bucket string
}

// NewArchiveClient builds an S3 client from the given bucket, static
// credentials, region and optional endpoint. Returns nil if no bucket is
// configured; archival is optional.
func NewArchiveClient(ctx context.Context, bucket, accessKey, secretKey, region, endpoint string) *ArchiveClient {
	if bucket == "" {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		log.Printf("[Archive] Failed to load AWS SDK configuration: %v", err)
		return nil
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	log.Printf("[Archive] S3 archival sink configured (bucket: %s)", bucket)
	return &ArchiveClient{client: client, bucket: bucket}
}

// ArchiveRawPayload uploads the raw adapter payload under
// raw/{uniqueId}/{fetchedAt}.json. Failures are logged and swallowed;
// archival is a best-effort side channel, never a reason to fail a
// collection job.
func (a *ArchiveClient) ArchiveRawPayload(ctx context.Context, uniqueID string, fetchedAt time.Time, payload []adapter.Sample) {
	if a == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Archive] Failed to marshal payload for %s: %v", uniqueID, err)
		return
	}

	key := fmt.Sprintf("raw/%s/%s.json", uniqueID, fetchedAt.UTC().Format(time.RFC3339))
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(string(body)),
	})
	if err != nil {
		log.Printf("[Archive] Failed to archive payload for %s: %v", uniqueID, err)
	}
}
