package scrub

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"secure-scrub/internal/inspect"
)

// collapseRevisions rewrites the PDF at path as a single revision when it
// carries incremental updates. exiftool only appends an update over the
// original Info dictionary, so without this the removed values stay in the
// file. pdfcpu writes only objects reachable from the current trailer.
func collapseRevisions(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if inspect.EarlierRevisions(data) == 0 {
		return nil
	}

	conf := inspect.PDFConfig()
	conf.Cmd = model.OPTIMIZE

	tmp, err := os.CreateTemp(filepath.Dir(path), ".rewrite-*.pdf")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := api.Optimize(bytes.NewReader(data), tmp, conf); err != nil {
		tmp.Close()
		return fmt.Errorf("rewrite pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
