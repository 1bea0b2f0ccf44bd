// Package s3store keeps avatar images in an S3 compatible bucket (AWS, MinIO, Supabase storage).
package s3store

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core"
	"github.com/trezcool/pesantren/core/profile"
)

// objectAPI is the part of the s3 client the store uses.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type AvatarStore struct {
	client  objectAPI
	bucket  string
	baseURL string
}

var _ profile.AvatarStore = (*AvatarStore)(nil)

// NewAvatarStore returns the store of the configured bucket. Static keys are used when set,
// the default credential chain otherwise.
func NewAvatarStore(ctx context.Context, conf core.BucketConfig) (*AvatarStore, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(conf.Region)}
	if conf.AccessKey != "" && conf.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKey, conf.SecretKey, ""),
		))
	}
	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.UsePathStyle
	})
	return newAvatarStore(client, conf), nil
}

func newAvatarStore(client objectAPI, conf core.BucketConfig) *AvatarStore {
	baseURL := conf.PublicBaseURL
	if baseURL == "" {
		switch {
		case conf.Endpoint != "":
			baseURL = strings.TrimSuffix(conf.Endpoint, "/") + "/" + conf.Name
		default:
			baseURL = "https://" + conf.Name + ".s3." + conf.Region + ".amazonaws.com"
		}
	}
	return &AvatarStore{client: client, bucket: conf.Name, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (st *AvatarStore) Upload(ctx context.Context, key string, av profile.Avatar) error {
	// the body is buffered: the SDK needs a seekable payload to sign it
	data, err := io.ReadAll(av.Body)
	if err != nil {
		return errors.Wrap(err, "reading avatar")
	}
	_, err = st.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(st.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(av.ContentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=86400"),
	})
	if err != nil {
		return errors.Wrapf(err, "uploading %s", key)
	}
	return nil
}

func (st *AvatarStore) Delete(ctx context.Context, key string) error {
	_, err := st.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(st.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(err, "deleting %s", key)
	}
	return nil
}

func (st *AvatarStore) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return st.baseURL + "/" + strings.Join(segments, "/")
}
