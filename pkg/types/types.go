package types

import (
	"time"
)

type VideoSetting struct {
	Enable bool `json:"enable"`
	FPS    int  `json:"fps"`
	// MaxFrames stops the recording after this many frames; 0 means no limit.
	MaxFrames int `json:"maxFrames"`
	MaxWidth  int `json:"maxWidth"`
}

type File struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	ModTime time.Time `json:"modTime"`
}
