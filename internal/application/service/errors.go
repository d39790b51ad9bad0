package service

import "errors"

var (
	ErrEmptyAsset       = errors.New("asset identifier is empty")
	ErrNilViewer        = errors.New("viewer is nil")
	ErrUpstreamNotBound = errors.New("upstream connection not bound")
)
