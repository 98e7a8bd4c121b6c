// Package signer generates presigned S3 GET URLs with the AWS SDK.
package signer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/tendant/s3-presigner/pkg/presigner/s3url"
)

const defaultTimeout = 5 * time.Second

// MaxExpiresIn is the longest validity, in seconds, SigV4 allows for a presigned URL
const MaxExpiresIn = 7 * 24 * 60 * 60

// Config options for the signer
type Config struct {
	Region          string // AWS region used when the URL does not name one
	Profile         string // Optional shared config profile
	AccessKeyID     string // Optional static access key; default chain is used when empty
	SecretAccessKey string
	SessionToken    string
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool
	Timeout         time.Duration // Upper bound for a single signing call (default: 5s)
}

// Signer produces presigned GET URLs. It is safe for concurrent use.
type Signer struct {
	client      *s3.Client
	presigner   *s3.PresignClient
	credentials aws.CredentialsProvider
	timeout     time.Duration
}

// New resolves the AWS configuration once and returns a signer bound to it
func New(ctx context.Context, config Config) (*Signer, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(config.Region),
	}
	if config.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(config.Profile))
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			config.SessionToken,
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	return &Signer{
		client:      client,
		presigner:   s3.NewPresignClient(client),
		credentials: awsCfg.Credentials,
		timeout:     config.Timeout,
	}, nil
}

// Sign returns a presigned GET URL for obj that stays valid for expires.
// A region carried by obj overrides the configured one.
func (s *Signer) Sign(ctx context.Context, obj s3url.Object, expires time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.retrieveCredentials(ctx); err != nil {
		return "", err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	}

	result, err := s.presigner.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
		if obj.Region != "" {
			opts.ClientOptions = append(opts.ClientOptions, func(o *s3.Options) {
				o.Region = obj.Region
			})
		}
	})
	if err != nil {
		return "", classifyError(ctx, obj, err)
	}

	return result.URL, nil
}

// Verify checks that credentials resolve and are accepted by S3
func (s *Signer) Verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.retrieveCredentials(ctx); err != nil {
		return err
	}

	_, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{
		MaxBuckets: aws.Int32(1),
	})
	if err != nil {
		return classifyError(ctx, s3url.Object{}, err)
	}
	return nil
}

func (s *Signer) retrieveCredentials(ctx context.Context) error {
	if s.credentials == nil {
		return ErrCredentialsMissing
	}
	if _, err := s.credentials.Retrieve(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: resolving credentials: %v", ErrTimeout, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrCredentialsMissing, err)
	}
	return nil
}

func classifyError(ctx context.Context, obj s3url.Object, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Code:    apiErr.ErrorCode(),
			Message: apiErr.ErrorMessage(),
			Err:     err,
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if obj.Bucket == "" {
		return fmt.Errorf("s3 request failed: %w", err)
	}
	return fmt.Errorf("generating presigned url for %s: %w", obj, err)
}
