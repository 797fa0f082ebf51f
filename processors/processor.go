// processors/processor.go
package processors

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gewnthar/circdash/models"
)

// FileProcessor routes an uploaded or dropped-off report file to the
// importer that understands it.
type FileProcessor interface {
	// Name is the human-readable processor name shown in logs and results.
	Name() string

	// FileType is the short identifier used for --type overrides.
	FileType() string

	// Patterns returns the filename glob patterns this processor claims,
	// in priority order.
	Patterns() []string

	// Validate checks the file before processing: existence, size and
	// enough structure to tell it is the right report type.
	Validate(filepath string) error

	// Process runs the import.
	Process(filepath, filename string, meta models.UploadMeta) (*models.ImportResult, error)
}

// ProcessResult is the outcome of running one file through a processor,
// with timing attached for the processing history view.
type ProcessResult struct {
	Processor string
	Filename  string
	Duration  time.Duration
	Result    *models.ImportResult
	Err       error
}

func (r *ProcessResult) Success() bool { return r.Err == nil }

// Run validates and processes one file, timing the whole thing. The
// returned ProcessResult always carries the processor name and duration,
// even on failure.
func Run(proc FileProcessor, path, filename string, meta models.UploadMeta) *ProcessResult {
	start := time.Now()
	pr := &ProcessResult{Processor: proc.Name(), Filename: filename}

	if err := proc.Validate(path); err != nil {
		pr.Err = fmt.Errorf("validation failed: %w", err)
		pr.Duration = time.Since(start)
		return pr
	}

	pr.Result, pr.Err = proc.Process(path, filename, meta)
	pr.Duration = time.Since(start)
	return pr
}

// Registry matches incoming filenames against registered processors.
type Registry struct {
	processors []FileProcessor
}

func NewRegistry(procs ...FileProcessor) *Registry {
	return &Registry{processors: procs}
}

// Match finds the processor whose patterns match the filename. Patterns
// are matched case-insensitively since Newzware exports vary in casing.
func (r *Registry) Match(filename string) (FileProcessor, error) {
	lower := strings.ToLower(filename)
	for _, p := range r.processors {
		for _, pattern := range p.Patterns() {
			ok, err := filepath.Match(strings.ToLower(pattern), lower)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q on processor %s: %w", pattern, p.Name(), err)
			}
			if ok {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("no processor matches filename %q", filename)
}

// ByType finds a processor by its FileType identifier.
func (r *Registry) ByType(fileType string) (FileProcessor, error) {
	for _, p := range r.processors {
		if strings.EqualFold(p.FileType(), fileType) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown file type %q", fileType)
}

// Known returns the registered file type identifiers.
func (r *Registry) Known() []string {
	types := make([]string, 0, len(r.processors))
	for _, p := range r.processors {
		types = append(types, p.FileType())
	}
	return types
}
