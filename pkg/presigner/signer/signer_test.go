package signer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/s3-presigner/pkg/presigner/s3url"
)

// isolateAWSEnv keeps the developer's AWS configuration out of the tests
func isolateAWSEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
}

func newStaticSigner(t *testing.T) *Signer {
	t.Helper()
	isolateAWSEnv(t)
	s, err := New(context.Background(), Config{
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	})
	require.NoError(t, err)
	return s
}

func TestNew_Defaults(t *testing.T) {
	isolateAWSEnv(t)
	s, err := New(context.Background(), Config{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, s.timeout)
	assert.Equal(t, "us-east-1", s.client.Options().Region)
}

func TestSigner_Sign(t *testing.T) {
	s := newStaticSigner(t)
	obj := s3url.Object{Bucket: "mybucket", Key: "path/file.txt"}

	signed, err := s.Sign(context.Background(), obj, 120*time.Second)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	q := u.Query()

	assert.Contains(t, u.Host, "mybucket")
	assert.Equal(t, "/path/file.txt", u.Path)
	assert.Equal(t, "120", q.Get("X-Amz-Expires"))
	assert.Equal(t, "AWS4-HMAC-SHA256", q.Get("X-Amz-Algorithm"))
	assert.NotEmpty(t, q.Get("X-Amz-Signature"))
	assert.Contains(t, q.Get("X-Amz-Credential"), "AKIDEXAMPLE/")
	assert.Contains(t, q.Get("X-Amz-Credential"), "/us-east-1/s3/aws4_request")
}

func TestSigner_Sign_RegionOverride(t *testing.T) {
	s := newStaticSigner(t)
	obj := s3url.Object{Bucket: "mybucket", Key: "file.txt", Region: "eu-west-1"}

	signed, err := s.Sign(context.Background(), obj, time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Contains(t, u.Query().Get("X-Amz-Credential"), "/eu-west-1/s3/aws4_request")
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
}

func TestSigner_Sign_StructurallyStable(t *testing.T) {
	s := newStaticSigner(t)
	obj := s3url.Object{Bucket: "mybucket", Key: "file.txt"}

	strip := func(raw string) string {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		q := u.Query()
		q.Del("X-Amz-Date")
		q.Del("X-Amz-Signature")
		q.Del("X-Amz-Credential") // embeds the signing date
		u.RawQuery = q.Encode()
		return u.String()
	}

	first, err := s.Sign(context.Background(), obj, time.Minute)
	require.NoError(t, err)
	second, err := s.Sign(context.Background(), obj, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, strip(first), strip(second))
}

func TestSigner_Sign_MissingCredentials(t *testing.T) {
	s := &Signer{
		credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{}, errors.New("no EC2 IMDS role found")
		}),
		timeout: time.Second,
	}

	_, err := s.Sign(context.Background(), s3url.Object{Bucket: "b", Key: "k"}, time.Minute)
	require.Error(t, err)
	assert.True(t, IsCredentialsError(err))
	assert.Contains(t, err.Error(), "no EC2 IMDS role found")

	err = s.Verify(context.Background())
	assert.True(t, IsCredentialsError(err))
}

func TestSigner_Sign_NilCredentials(t *testing.T) {
	s := &Signer{timeout: time.Second}
	_, err := s.Sign(context.Background(), s3url.Object{Bucket: "b", Key: "k"}, time.Minute)
	assert.ErrorIs(t, err, ErrCredentialsMissing)
}

func TestSigner_Sign_Timeout(t *testing.T) {
	s := &Signer{
		credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			<-ctx.Done()
			return aws.Credentials{}, ctx.Err()
		}),
		timeout: 10 * time.Millisecond,
	}

	_, err := s.Sign(context.Background(), s3url.Object{Bucket: "b", Key: "k"}, time.Minute)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, IsCredentialsError(err))
}

func TestClassifyError(t *testing.T) {
	obj := s3url.Object{Bucket: "mybucket", Key: "file.txt"}

	t.Run("api error", func(t *testing.T) {
		apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
		err := classifyError(context.Background(), obj, fmt.Errorf("operation error: %w", apiErr))

		var providerErr *ProviderError
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, "AccessDenied", providerErr.Code)
		assert.Equal(t, "Access Denied", providerErr.Message)
		assert.Equal(t, "aws client error: AccessDenied: Access Denied", err.Error())
	})

	t.Run("other error", func(t *testing.T) {
		cause := errors.New("boom")
		err := classifyError(context.Background(), obj, cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "s3://mybucket/file.txt")
	})

	t.Run("expired context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := classifyError(ctx, obj, errors.New("request canceled"))
		assert.ErrorIs(t, err, ErrTimeout)
	})
}
