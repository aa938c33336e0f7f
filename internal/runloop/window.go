package runloop

import "gocv.io/x/gocv"

// Window displays frames in an OpenCV highgui window.
type Window struct {
	win *gocv.Window
}

// NewWindow opens a named display window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show renders the frame.
func (w *Window) Show(img gocv.Mat) {
	w.win.IMShow(img)
}

// PollKey pumps the GUI event loop for 1ms and returns the pressed key,
// or -1 when none was pressed.
func (w *Window) PollKey() int {
	return w.win.WaitKey(1)
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
