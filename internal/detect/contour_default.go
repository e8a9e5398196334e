//go:build !opencv

package detect

import "github.com/sirupsen/logrus"

// NewContourFinder is unavailable without OpenCV.
func NewContourFinder(p Params, log *logrus.Entry) (Finder, error) {
	return nil, ErrContourUnavailable
}
