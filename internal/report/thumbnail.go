package report

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/spf13/afero"
)

// thumbnail scales the image at src down to maxWidth, keeping the aspect
// ratio, and writes it to dst as PNG. Images already narrower than maxWidth
// are re-encoded unscaled.
func thumbnail(fs afero.Fs, src, dst string, maxWidth uint) error {
	in, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	img, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}

	bounds := img.Bounds()
	if maxWidth > 0 && uint(bounds.Dx()) > maxWidth {
		aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
		height := uint(float64(maxWidth) * aspectRatio)
		if height == 0 {
			height = 1
		}
		img = resize.Resize(maxWidth, height, img, resize.Lanczos3)
	}

	out, err := fs.Create(dst)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return fmt.Errorf("encode %s: %w", dst, err)
	}
	return out.Close()
}
