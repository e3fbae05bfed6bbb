package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestUpload(t *testing.T) {
	fake := &fakePutter{}
	r := &R2Client{client: fake, bucket: "calls"}

	err := r.Upload(context.Background(), "recordings/r1/s1/s1-turn-2.wav", []byte("RIFF"), "audio/wav")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if aws.ToString(fake.input.Bucket) != "calls" || aws.ToString(fake.input.Key) != "recordings/r1/s1/s1-turn-2.wav" {
		t.Errorf("unexpected input %+v", fake.input)
	}
	if aws.ToString(fake.input.ContentType) != "audio/wav" || string(fake.body) != "RIFF" {
		t.Errorf("content type %q body %q", aws.ToString(fake.input.ContentType), fake.body)
	}
}

func TestUpload_Error(t *testing.T) {
	cause := errors.New("access denied")
	r := &R2Client{client: &fakePutter{err: cause}, bucket: "calls"}

	if err := r.Upload(context.Background(), "k", nil, ""); !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestNewR2Client_RequiresEndpoint(t *testing.T) {
	if _, err := NewR2Client(context.Background(), Config{Bucket: "b"}); err == nil {
		t.Error("expected error without endpoint")
	}
}

func TestNewR2Client(t *testing.T) {
	r, err := NewR2Client(context.Background(), Config{
		Endpoint:  "https://account.r2.cloudflarestorage.com",
		AccessKey: "a",
		SecretKey: "s",
		Bucket:    "calls",
	})
	if err != nil {
		t.Fatalf("NewR2Client() error = %v", err)
	}
	if r.bucket != "calls" {
		t.Errorf("bucket = %s", r.bucket)
	}
}
