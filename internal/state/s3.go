package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gantry-io/gantry/internal/ir"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// S3 stores the state snapshot as a single YAML object in an S3 bucket.
// Writes are read-modify-write of the whole object, serialized locally.
type S3 struct {
	bucket string
	key    string
	client *s3.Client
	mu     sync.Mutex
}

func NewS3(ctx context.Context, bucket, key, region string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 state store requires a bucket")
	}
	if key == "" {
		key = "gantry/state.yaml"
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &S3{
		bucket: bucket,
		key:    key,
		client: s3.NewFromConfig(cfg),
	}, nil
}

func (s *S3) Load(ctx context.Context) (map[ir.ID]*ir.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[ir.ID]*ir.Entry, len(snap.Entries))
	for _, e := range snap.Entries {
		out[e.ID()] = e
	}
	return out, nil
}

func (s *S3) Upsert(ctx context.Context, id ir.ID, entry *ir.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range snap.Entries {
		if e.ID() == id {
			snap.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		snap.Entries = append(snap.Entries, entry)
	}
	return s.write(ctx, snap)
}

func (s *S3) Remove(ctx context.Context, id ir.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read(ctx)
	if err != nil {
		return err
	}
	for i, e := range snap.Entries {
		if e.ID() == id {
			snap.Entries = append(snap.Entries[:i], snap.Entries[i+1:]...)
			return s.write(ctx, snap)
		}
	}
	return nil
}

func (s *S3) read(ctx context.Context) (*ir.Snapshot, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return &ir.Snapshot{Version: 1, Lineage: uuid.NewString()}, nil
		}
		return nil, fmt.Errorf("read state from s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer result.Body.Close()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read S3 object body: %w", err)
	}
	raw, err = DecryptState(raw)
	if err != nil {
		return nil, err
	}
	var snap ir.Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse state from s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return &snap, nil
}

func (s *S3) write(ctx context.Context, snap *ir.Snapshot) error {
	snap.Serial++
	raw, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	raw, err = EncryptState(raw)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		return fmt.Errorf("write state to s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}
