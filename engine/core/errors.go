package core

import (
	"errors"
)

var (
	ErrInvalidFrameState      = errors.New("invalid frame state transition")
	ErrBackendMismatch        = errors.New("resource does not belong to the active backend")
	ErrUnknownShader          = errors.New("unknown shader")
	ErrUnknownUniformBlock    = errors.New("unknown uniform block")
	ErrShaderBuild            = errors.New("shader build failed")
	ErrNoDepthTarget          = errors.New("no depth target selected")
	ErrInvalidConfig          = errors.New("invalid configuration")
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	ErrTextureSize            = errors.New("texture data does not match its size")
	ErrUnknown                = errors.New("unknown")
)
