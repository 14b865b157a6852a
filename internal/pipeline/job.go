package pipeline

import (
	"fmt"

	"github.com/fpang/qr-bulk-generator/internal/manifest"
)

// BulkGenerationJob is one invocation's input: the mappings to render and
// the storage prefix (also the scratch directory name) for its outputs.
type BulkGenerationJob struct {
	FilePath string             `json:"filePath"`
	Mappings []manifest.Mapping `json:"mappings"`
}

// ShortURLs returns the short codes of every mapping, in order.
func (j BulkGenerationJob) ShortURLs() []string {
	out := make([]string, len(j.Mappings))
	for i, m := range j.Mappings {
		out[i] = m.ShortURL
	}
	return out
}

// GeneratedArtifact is one object the job uploaded.
type GeneratedArtifact struct {
	StorageKey  string `json:"storageKey"`
	ContentType string `json:"contentType"`
}

// Stage is a step of the job state machine.
type Stage int

const (
	StageStarted Stage = iota
	StageCsvUploaded
	StageSvgSetUploaded
	StagePngSetUploaded
	StageScratchCleaned
	StageNotifiedSuccess
	StageNotifiedFailure
)

func (s Stage) String() string {
	switch s {
	case StageStarted:
		return "Started"
	case StageCsvUploaded:
		return "CsvUploaded"
	case StageSvgSetUploaded:
		return "SvgSetUploaded"
	case StagePngSetUploaded:
		return "PngSetUploaded"
	case StageScratchCleaned:
		return "ScratchCleaned"
	case StageNotifiedSuccess:
		return "NotifiedSuccess"
	case StageNotifiedFailure:
		return "NotifiedFailure"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Object keys below a job's filePath.
const (
	csvObject    = "generated.csv"
	svgObject    = "generated_svg.zip"
	pngObject    = "generated_png.zip"
	svgScratch   = "svg"
	pngScratch   = "png"
	notifyBudget = 10 // seconds allowed for the completion event after the job
)
