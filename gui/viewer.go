//go:build gui

package gui

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

// ArtView fills the window with one image, letterboxed to preserve the
// aspect ratio. Tapping anywhere fires onTap.
type ArtView struct {
	widget.BaseWidget
	img   *canvas.Image
	onTap func()
}

func NewArtView(onTap func()) *ArtView {
	v := &ArtView{
		img:   &canvas.Image{FillMode: canvas.ImageFillContain},
		onTap: onTap,
	}
	v.ExtendBaseWidget(v)
	return v
}

func (v *ArtView) SetImage(data []byte) error {
	m, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	v.img.Image = m
	v.img.Refresh()
	return nil
}

func (v *ArtView) Tapped(*fyne.PointEvent) {
	if v.onTap != nil {
		v.onTap()
	}
}

func (v *ArtView) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.img)
}
