package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/config"
	"cam2-shutter/pkg/device"
	"cam2-shutter/pkg/utils"
)

// Prints what the device advertises and what a session would resolve from
// the given configuration, without opening a session.
func main() {
	devName := device.Sim
	cfgFile := ""
	flag.StringVar(&devName, "d", devName, `device name (path), or "sim"`)
	flag.StringVar(&cfgFile, "c", cfgFile, "JSON config file; its camera block is resolved")
	flag.Parse()

	cfg := config.Default()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			log.Fatalf("failed to load config: %s", err)
		}
	}

	dev, err := device.Open(devName, device.Options{}, utils.GetLogger())
	if err != nil {
		log.Fatalf("failed to open device: %s", err)
	}
	defer dev.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch, err := dev.Characteristics(ctx)
	if err != nil {
		log.Fatal(err)
	}
	settings, err := camera.ResolveSettings(ch, cfg.Camera, utils.GetLogger())
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	out := struct {
		Characteristics camera.Characteristics `json:"characteristics"`
		Settings        camera.Settings        `json:"settings"`
	}{ch, settings}
	if err := enc.Encode(out); err != nil {
		panic(err)
	}
}
