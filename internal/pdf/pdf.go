package pdf

import (
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/xerrors"
)

const jpegQuality = 95

func init() {
	api.DisableConfigDir()
}

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// FromImage writes img as a single-page PDF at outPath. The JPEG it is
// imported from is kept next to it with the same base name.
func FromImage(img image.Image, outPath string) error {
	jpegPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".jpg"

	f, err := os.Create(jpegPath)
	if err != nil {
		return xerrors.Errorf("failed to create %s: %w", jpegPath, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		_ = f.Close()
		return xerrors.Errorf("failed to encode %s: %w", jpegPath, err)
	}
	if err := f.Close(); err != nil {
		return xerrors.Errorf("failed to close %s: %w", jpegPath, err)
	}

	// The default import places each image on a page of its own size.
	if err := api.ImportImagesFile([]string{jpegPath}, outPath, pdfcpu.DefaultImportConfig(), configuration()); err != nil {
		return xerrors.Errorf("failed to import %s: %w", jpegPath, err)
	}
	return nil
}

// Merge concatenates inPaths in order into a new PDF at outPath.
func Merge(inPaths []string, outPath string) error {
	if len(inPaths) == 0 {
		return xerrors.New("nothing to merge")
	}
	if err := api.MergeCreateFile(inPaths, outPath, false, configuration()); err != nil {
		return xerrors.Errorf("failed to merge into %s: %w", outPath, err)
	}
	return nil
}

func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, xerrors.Errorf("failed to count pages of %s: %w", path, err)
	}
	return n, nil
}
