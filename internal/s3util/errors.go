package s3util

import "fmt"

// UploadError reports a transport or storage failure for one object key.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ArchiveStreamError reports a failure raised while building an archive
// (reading a source file, writing an entry) rather than by the upload itself.
type ArchiveStreamError struct {
	Path string
	Err  error
}

func (e *ArchiveStreamError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("archive stream: %v", e.Err)
	}
	return fmt.Sprintf("archive stream %s: %v", e.Path, e.Err)
}

func (e *ArchiveStreamError) Unwrap() error { return e.Err }
