package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fpang/qr-bulk-generator/internal/jsonutil"
	"github.com/fpang/qr-bulk-generator/internal/pipeline"
)

// ReadJob loads a job document from path, or from stdin when path is "-".
func ReadJob(path string, stdin io.Reader) (pipeline.BulkGenerationJob, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return pipeline.BulkGenerationJob{}, fmt.Errorf("read job %s: %w", path, err)
	}

	job, err := jsonutil.Decode[pipeline.BulkGenerationJob](raw)
	if err != nil {
		return pipeline.BulkGenerationJob{}, fmt.Errorf("decode job %s: %w", path, err)
	}
	return job, nil
}
