// Package config loads the service configuration from an optional JSON file
// and command line flags. Flags that are set win over the file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/types"
)

// DeviceSim selects the simulated camera.
const DeviceSim = "sim"

type Config struct {
	// Device is DeviceSim or a V4L2 device path such as /dev/video0.
	Device     string `json:"device"`
	Port       int    `json:"port"`
	WebdavPort int    `json:"webdavPort"`
	StorageDir string `json:"storageDir"`
	StaticsDir string `json:"staticsDir"`
	LogLevel   string `json:"logLevel"`

	JPEGQuality    int `json:"jpegQuality"`
	StreamMaxWidth int `json:"streamMaxWidth"`
	StreamFPS      int `json:"streamFPS"`

	Video  types.VideoSetting `json:"video"`
	Camera camera.Config      `json:"camera"`
}

func Default() Config {
	return Config{
		Device:         DeviceSim,
		Port:           9999,
		WebdavPort:     9998,
		StorageDir:     "./cam2-shutter",
		LogLevel:       "info",
		JPEGQuality:    90,
		StreamMaxWidth: 640,
		StreamFPS:      10,
		Video:          types.VideoSetting{FPS: 10, MaxWidth: 640},
		Camera:         camera.DefaultConfig(),
	}
}

// Load decodes a JSON file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err = json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Parse builds the configuration from args (without the program name).
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("cam2-shutter", flag.ContinueOnError)
	file := fs.String("config", "", "JSON config file")
	device := fs.String("device", DeviceSim, `camera: "sim" or a V4L2 device path`)
	port := fs.Int("port", 9999, "ui port")
	webdavPort := fs.Int("webdav-port", 9998, "webdav port")
	dir := fs.String("dir", "./cam2-shutter", "storage directory")
	statics := fs.String("statics", "", "static ui directory")
	level := fs.String("log-level", "info", "debug, info, warn or error")
	quality := fs.Int("quality", 90, "JPEG quality for the stream")
	rotation := fs.String("rotation", "0", "0, 90, 180, 270 or sensor")
	af := fs.String("af", "", "AF mode")
	ae := fs.String("ae", "", "AE mode")
	awb := fs.String("awb", "", "AWB mode")
	preview := fs.String("preview", "", "preview size WxH")
	still := fs.String("still", "", "still size WxH")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *file != "" {
		var err error
		if cfg, err = Load(*file); err != nil {
			return cfg, err
		}
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = *device
		case "port":
			cfg.Port = *port
		case "webdav-port":
			cfg.WebdavPort = *webdavPort
		case "dir":
			cfg.StorageDir = *dir
		case "statics":
			cfg.StaticsDir = *statics
		case "log-level":
			cfg.LogLevel = *level
		case "quality":
			cfg.JPEGQuality = *quality
		case "rotation":
			cfg.Camera.Rotation = camera.RotationMode(*rotation)
		case "af":
			cfg.Camera.AFMode = *af
		case "ae":
			cfg.Camera.AEMode = *ae
		case "awb":
			cfg.Camera.AWBMode = *awb
		case "preview":
			err = multierr.Append(err, parseSizeInto(&cfg.Camera.PreviewSize, *preview))
		case "still":
			err = multierr.Append(err, parseSizeInto(&cfg.Camera.StillSize, *still))
		}
	})
	if err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate("config")
}

func parseSizeInto(dst *camera.Size, s string) error {
	size, err := ParseSize(s)
	if err != nil {
		return err
	}
	*dst = size
	return nil
}

// ParseSize parses "WxH".
func ParseSize(s string) (camera.Size, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return camera.Size{}, fmt.Errorf("size %q is not WxH", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return camera.Size{}, fmt.Errorf("size %q: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return camera.Size{}, fmt.Errorf("size %q: %w", s, err)
	}
	return camera.Size{Width: width, Height: height}, nil
}

func (c Config) Validate(path string) error {
	if c.Device == "" {
		return errors.Errorf("%s: device is required", path)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("%s: invalid port %d", path, c.Port)
	}
	if c.WebdavPort <= 0 || c.WebdavPort > 65535 || c.WebdavPort == c.Port {
		return errors.Errorf("%s: invalid webdavPort %d", path, c.WebdavPort)
	}
	if c.StorageDir == "" {
		return errors.Errorf("%s: storageDir is required", path)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(err, "%s: logLevel", path)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.Errorf("%s: jpegQuality must be in [1, 100]", path)
	}
	if c.StreamMaxWidth < 0 || c.StreamFPS < 0 {
		return errors.Errorf("%s: stream settings cannot be negative", path)
	}
	if c.Video.FPS < 0 || c.Video.MaxFrames < 0 || c.Video.MaxWidth < 0 {
		return errors.Errorf("%s: video settings cannot be negative", path)
	}
	return c.Camera.Validate(path + ".camera")
}
