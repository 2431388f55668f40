package ov

import (
	"time"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/schedule"
	"cam2-shutter/pkg/utils/ps"
)

type Schedule struct {
	// ms
	Interval int `json:"interval" binding:"required"`
}

type Status struct {
	Device    string          `json:"device"`
	Camera    camera.Stats    `json:"camera"`
	Settings  camera.Settings `json:"settings"`
	Error     string          `json:"error,omitempty"`
	Webdav    bool            `json:"webdav"`
	Recording bool            `json:"recording"`
	Schedule  schedule.Status `json:"schedule"`
	Host      ps.Status       `json:"host"`
}

type Capture struct {
	Sequence uint64    `json:"sequence"`
	Size     int       `json:"size"`
	At       time.Time `json:"at"`
	Path     string    `json:"path,omitempty"`
}
