// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package upload issues presigned S3 PUT URLs for application documents and
// performs the client side of the upload.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
)

// PresignExpiry is how long a presigned URL stays valid.
const PresignExpiry = 15 * time.Minute

// Kind identifies which application document is being uploaded.
type Kind string

// Document kinds.
const (
	KindProfilePhoto Kind = "profile_photo"
	KindIDCard       Kind = "id_card"
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if k.MaxBytes() == 0 {
		return "", oops.Code(auth.CodeValidation).With("kind", s).Errorf("unknown upload kind %q", s)
	}
	return k, nil
}

// MaxBytes is the largest accepted object for the kind, or 0 if the kind
// is unknown.
func (k Kind) MaxBytes() int64 {
	switch k {
	case KindProfilePhoto:
		return 200 << 10
	case KindIDCard:
		return 300 << 10
	default:
		return 0
	}
}

// Ticket authorizes a single PUT of one document.
type Ticket struct {
	URL       string    `json:"url" yaml:"url"`
	Key       string    `json:"key" yaml:"key"`
	PublicURL string    `json:"public_url" yaml:"public_url"`
	MaxBytes  int64     `json:"max_bytes" yaml:"max_bytes"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

// Presigner hands out upload tickets.
type Presigner interface {
	Presign(ctx context.Context, kind Kind) (*Ticket, error)
}

// Config describes the target bucket. AccessKey and SecretKey may be empty,
// in which case the default AWS credential chain is used.
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	AccessKey     string
	SecretKey     string
}

// presignAPI is the part of *s3.PresignClient used here.
type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Presigner presigns PUT requests against an S3 compatible store.
type S3Presigner struct {
	client     presignAPI
	bucket     string
	publicBase string
	now        func() time.Time
}

// NewS3Presigner builds an S3Presigner from cfg. A custom endpoint switches
// to path-style addressing so MinIO works out of the box.
func NewS3Presigner(ctx context.Context, cfg Config) (*S3Presigner, error) {
	if cfg.Bucket == "" {
		return nil, oops.Code("UPLOAD_CONFIG_INVALID").Errorf("upload bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.Code("UPLOAD_CONFIG_INVALID").With("operation", "load aws config").Wrap(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := cfg.PublicBaseURL
	if publicBase == "" && cfg.Endpoint != "" {
		publicBase = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Presigner{
		client:     s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		now:        time.Now,
	}, nil
}

// ObjectKey returns a fresh key of the form applications/YYYY/MM/DD/<kind>/<uuid>.
func ObjectKey(kind Kind, at time.Time) string {
	return fmt.Sprintf("applications/%s/%s/%s", at.UTC().Format("2006/01/02"), kind, uuid.NewString())
}

// Presign returns a ticket for one upload of kind.
func (p *S3Presigner) Presign(ctx context.Context, kind Kind) (*Ticket, error) {
	if kind.MaxBytes() == 0 {
		return nil, oops.Code(auth.CodeValidation).With("kind", kind).Errorf("unknown upload kind %q", kind)
	}
	now := p.now()
	key := ObjectKey(kind, now)

	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return nil, oops.Code(auth.CodeUpstream).
			With("operation", "presign put").
			With("key", key).
			Wrap(err)
	}

	t := &Ticket{
		URL:       req.URL,
		Key:       key,
		MaxBytes:  kind.MaxBytes(),
		ExpiresAt: now.Add(PresignExpiry).UTC(),
	}
	if p.publicBase != "" {
		t.PublicURL = p.publicBase + "/" + key
	}
	return t, nil
}

// Put uploads body to the ticket's URL. Oversized bodies are refused before
// any network traffic. Transport failures and non-2xx answers carry the
// UPSTREAM_FAILURE code.
func Put(ctx context.Context, client *http.Client, t *Ticket, contentType string, body []byte) error {
	if t == nil || t.URL == "" {
		return oops.Code(auth.CodeValidation).Errorf("upload ticket is required")
	}
	if len(body) == 0 {
		return oops.Code(auth.CodeValidation).Errorf("file is empty")
	}
	if t.MaxBytes > 0 && int64(len(body)) > t.MaxBytes {
		return oops.Code(auth.CodeValidation).
			With("size", len(body)).
			With("max_bytes", t.MaxBytes).
			Errorf("file exceeds %d KiB", t.MaxBytes>>10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.URL, bytes.NewReader(body))
	if err != nil {
		return oops.Code(auth.CodeValidation).With("operation", "build upload request").Wrap(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.ContentLength = int64(len(body))

	resp, err := client.Do(req)
	if err != nil {
		return oops.Code(auth.CodeUpstream).With("key", t.Key).Wrapf(err, "upload failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck // drain for reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return oops.Code(auth.CodeUpstream).
			With("key", t.Key).
			With("status", resp.StatusCode).
			Errorf("upload rejected with status %d", resp.StatusCode)
	}
	return nil
}
