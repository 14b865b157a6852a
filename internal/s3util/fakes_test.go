package s3util

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 records PutObject calls and drains streaming uploads into memory.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	inputs  map[string]*s3.PutObjectInput

	putErr    error
	uploadErr error
	// failAfter makes Upload fail once this many bytes were read (0 = never).
	failAfter int64
	// failImmediately makes Upload fail without reading the body.
	failImmediately bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), inputs: make(map[string]*s3.PutObjectInput)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.store(in, data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.failImmediately {
		return nil, f.uploadErr
	}

	var buf bytes.Buffer
	var err error
	if f.failAfter > 0 {
		_, err = io.CopyN(&buf, in.Body, f.failAfter)
		if err == nil {
			return nil, f.uploadErr
		}
	} else {
		_, err = io.Copy(&buf, in.Body)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.store(in, buf.Bytes())
	return &manager.UploadOutput{Key: in.Key}, nil
}

func (f *fakeS3) store(in *s3.PutObjectInput, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = data
	f.inputs[key] = in
}

func (f *fakeS3) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}
