package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap/zapcore"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/device/sim"
	"cam2-shutter/pkg/utils"
)

// 打印拍照状态机（Graphviz 格式）；加 -run 时在模拟设备上执行一次拍照，
// 以 debug 日志输出每次状态转换。
func main() {
	run := flag.Bool("run", false, "在模拟设备上执行一次拍照")
	af := flag.String("af", "continuous-picture", "AF 模式")
	ae := flag.String("ae", "on", "AE 模式")
	focus := flag.Int("focus-frames", 3, "对焦锁定所需帧数")
	exposure := flag.Int("exposure-frames", 3, "测光收敛所需帧数")
	flag.Parse()

	cfg := camera.DefaultConfig()
	cfg.AFMode, cfg.AEMode = *af, *ae
	if err := cfg.Validate("camera"); err != nil {
		log.Fatal(err)
	}

	if !*run {
		ctrl := camera.NewController(nil, camera.Settings{}, nil, utils.GetLogger())
		fmt.Println(ctrl.Visualize())
		return
	}

	logger := utils.NewLogger(zapcore.DebugLevel)
	opts := sim.DefaultOptions()
	opts.FocusFrames, opts.ExposureFrames = *focus, *exposure
	dev := sim.New(opts, logger.Named("sim"))

	s := camera.NewSession(dev, cfg, camera.WithLogger(logger.Named("camera")))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		log.Fatal(err)
	}
	start := time.Now()
	img, err := s.Capture(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "still: %d bytes in %s, state %s\n", len(img), time.Since(start), s.State())
}
