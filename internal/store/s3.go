package store

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/chtzvt/rewardd/internal/secrets"
)

// S3 DeleteObjects takes at most 1000 keys per request.
const s3DeleteBatch = 1000

type S3Store struct {
	bucket           string
	prefix           string
	region           string
	endpoint         string
	secrets          *secrets.Store
	disableChecksums bool

	mu     sync.Mutex
	client S3API // lazily built; tests inject
}

// S3API abstracts the S3 operations used here (for testing)
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

func NewS3Store(opts map[string]interface{}, sec *secrets.Store) (Store, error) {
	bucket, _ := opts["bucket"].(string)
	prefix, _ := opts["prefix"].(string)
	region, _ := opts["region"].(string)
	endpoint, _ := opts["endpoint"].(string)
	baseEndpoint, _ := opts["base_endpoint"].(string) // support both for flexibility

	// Checksum toggles
	var disableChecksums bool
	if v, ok := opts["disable_checksums"]; ok {
		disableChecksums = toBool(v)
	}

	if bucket == "" || region == "" {
		return nil, fmt.Errorf("s3 store requires 'bucket' and 'region' options")
	}

	return &S3Store{
		bucket:           bucket,
		prefix:           prefix,
		region:           region,
		secrets:          sec,
		endpoint:         chooseEndpoint(endpoint, baseEndpoint),
		disableChecksums: disableChecksums,
	}, nil
}

func (s *S3Store) getClient(ctx context.Context) (S3API, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	awsCfgOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s.region),
	}
	if s.secrets != nil {
		// Static credentials from the cluster secrets store; without one,
		// fall through to the ambient credential chain.
		accessKey, err := s.secrets.Get(ctx, "AWS_ACCESS_KEY_ID")
		if err != nil {
			return nil, fmt.Errorf("missing AWS_ACCESS_KEY_ID: %w", err)
		}
		secretKey, err := s.secrets.Get(ctx, "AWS_SECRET_ACCESS_KEY")
		if err != nil {
			return nil, fmt.Errorf("missing AWS_SECRET_ACCESS_KEY: %w", err)
		}
		awsCfgOpts = append(awsCfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(string(accessKey), string(secretKey), ""),
		))
	}

	// Set checksum config
	if s.disableChecksums {
		awsCfgOpts = append(awsCfgOpts, config.WithRequestChecksumCalculation(0))
		awsCfgOpts = append(awsCfgOpts, config.WithResponseChecksumValidation(0))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, awsCfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("aws config load error: %w", err)
	}
	s3Opts := []func(*s3.Options){}
	if s.endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &s.endpoint
		})
	}
	s.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return s.client, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}
	full := s.prefix + prefix
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: &s.bucket,
		Prefix: &full,
	})
	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", full, err)
		}
		for _, obj := range page.Contents {
			var key string
			if obj.Key != nil {
				key = strings.TrimPrefix(*obj.Key, s.prefix)
			}
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			objects = append(objects, Object{Key: key, Size: size})
		}
	}
	return objects, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}
	full := s.prefix + key
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &full,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", full, err)
	}
	return out.Body, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader) error {
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}
	full := s.prefix + key
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &full,
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", full, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += s3DeleteBatch {
		end := start + s3DeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			full := s.prefix + k
			ids = append(ids, types.ObjectIdentifier{Key: &full})
		}
		out, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: &s.bucket,
			Delete: &types.Delete{Objects: ids},
		})
		if err != nil {
			return fmt.Errorf("s3 delete: %w", err)
		}
		for _, derr := range out.Errors {
			if derr.Key != nil && derr.Message != nil {
				return fmt.Errorf("s3 delete %s: %s", *derr.Key, *derr.Message)
			}
		}
	}
	return nil
}

func init() {
	Register("s3", NewS3Store)
}
