// Package inspect reads residual metadata from files in-process. It never
// re-encodes anything; codec work stays with the external tools.
package inspect

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"secure-scrub/internal/domain"
)

var disableConfigDir sync.Once

// PDFConfig returns a pdfcpu configuration that never touches the user's
// config directory.
func PDFConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	return model.NewDefaultConfiguration()
}

// Field is one named metadata value found in a file.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Report describes what identifying data a file still carries.
type Report struct {
	Path   string        `json:"path"`
	Format domain.Format `json:"format"`
	Size   int64         `json:"size"`
	Width  int           `json:"width,omitempty"`
	Height int           `json:"height,omitempty"`
	Pages  int           `json:"pages,omitempty"`
	Fields []Field       `json:"fields,omitempty"`
}

// Clean reports whether no identifying metadata was found.
func (r Report) Clean() bool {
	return len(r.Fields) == 0
}

// Inspect opens path and lists residual metadata.
func Inspect(path string) (Report, error) {
	format, ok := domain.ParseFormat(filepath.Ext(path))
	if !ok {
		return Report{}, fmt.Errorf("unsupported file type: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Report{}, err
	}
	report := Report{Path: path, Format: format, Size: info.Size()}

	switch format {
	case domain.FormatPDF:
		err = inspectPDF(path, &report)
	case domain.FormatPNG, domain.FormatJPEG:
		err = inspectImage(path, &report)
	}
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func inspectPDF(path string, report *Report) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	info, err := api.PDFInfo(bytes.NewReader(data), path, nil, PDFConfig())
	if err != nil {
		return fmt.Errorf("read pdf info: %w", err)
	}

	report.Pages = info.PageCount
	add := func(name, value string) {
		if value != "" {
			report.Fields = append(report.Fields, Field{Name: name, Value: value})
		}
	}
	add("Title", info.Title)
	add("Author", info.Author)
	add("Subject", info.Subject)
	add("Creator", info.Creator)
	add("Producer", info.Producer)
	add("CreationDate", info.CreationDate)
	add("ModDate", info.ModificationDate)
	for _, kw := range info.Keywords {
		add("Keyword", kw)
	}

	keys := make([]string, 0, len(info.Properties))
	for k := range info.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, info.Properties[k])
	}

	// superseded objects of incremental updates stay readable in the raw file
	if n := EarlierRevisions(data); n > 0 {
		add("EarlierRevisions", strconv.Itoa(n))
	}
	return nil
}

func inspectImage(path string, report *Report) error {
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	report.Width = bounds.Dx()
	report.Height = bounds.Dy()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if report.Format == domain.FormatPNG {
		report.Fields = pngMetadata(data)
	} else {
		report.Fields = jpegMetadata(data)
	}
	return nil
}

// ValidateImage decodes a PNG or JPEG fully; an error means the file is
// not a usable image.
func ValidateImage(path string) error {
	img, err := imaging.Open(path)
	if err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("decode %s: empty image", filepath.Base(path))
	}
	return nil
}
