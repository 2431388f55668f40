package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/config"
	"cam2-shutter/pkg/device"
	"cam2-shutter/pkg/utils"
)

// 在一个 main 里完成以下测试流程：
// 1) 打开会话并读取若干预览帧
// 2) 预览进行时拍照（3A 序列完成后预览应自动恢复）
// 3) 拍照后继续读取预览帧，验证预览已恢复
func main() {
	dev := flag.String("dev", device.Sim, `视频设备路径，或 "sim"`)
	pw := flag.Int("pw", 1280, "预览宽度")
	ph := flag.Int("ph", 720, "预览高度")
	cw := flag.Int("cw", 1920, "拍照宽度")
	ch := flag.Int("ch", 1080, "拍照高度")
	rotation := flag.String("rotation", "0", "旋转: 0, 90, 180, 270, sensor")
	n := flag.Int("n", 10, "每个阶段读取的预览帧数")
	loops := flag.Int("loops", 3, "循环次数")
	timeout := flag.Duration("timeout", 5*time.Second, "读帧/拍照超时时间")
	flag.Parse()

	logger := utils.GetLogger()
	cfg := config.Default().Camera
	cfg.PreviewSize = camera.Size{Width: *pw, Height: *ph}
	cfg.StillSize = camera.Size{Width: *cw, Height: *ch}
	cfg.Rotation = camera.RotationMode(*rotation)
	if err := cfg.Validate("camera"); err != nil {
		fmt.Println("配置错误:", err)
		os.Exit(1)
	}

	d, err := device.Open(*dev, device.Options{}, logger)
	if err != nil {
		fmt.Println("打开设备失败:", err)
		os.Exit(1)
	}
	session := camera.NewSession(d, cfg, camera.WithLogger(logger.Named("camera")))
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err = session.Start(ctx)
	cancel()
	if err != nil {
		fmt.Println("启动会话失败:", err)
		os.Exit(1)
	}
	s := session.Settings()
	fmt.Printf("预览 %s，拍照 %s，模式 %+v，旋转 %d\n", s.PreviewSize, s.StillSize, s.Modes, s.QuarterTurns*90)

	for iter := 1; iter <= *loops; iter++ {
		fmt.Printf("\n===== 循环第 %d 次 =====\n", iter)

		fmt.Printf("[1/3] 读取 %d 帧预览...\n", *n)
		readFrames(session, *n, *timeout)

		fmt.Println("[2/3] 预览进行时拍照...")
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		img, err := session.Capture(ctx)
		cancel()
		if err != nil {
			fmt.Println("Capture 失败:", err)
			os.Exit(1)
		}
		name := fmt.Sprintf("capture_during_%d.jpg", iter)
		if err := os.WriteFile(name, img, 0o644); err != nil {
			fmt.Println("保存失败:", err)
			os.Exit(1)
		}
		fmt.Printf("保存 %s，大小 %d 字节，耗时 %s\n", name, len(img), time.Since(start))

		fmt.Printf("[3/3] 拍照后继续读取 %d 帧以验证预览恢复...\n", *n)
		readFrames(session, *n, *timeout)

		time.Sleep(500 * time.Millisecond)
	}

	st := session.Stats()
	fmt.Printf("\n完成 %d 次，中止 %d 次，处理帧 %d，忙丢弃 %d，过期丢弃 %d\n",
		st.Completed, st.Aborted, st.Frames.Processed, st.Frames.DroppedBusy, st.Frames.DroppedStale)
}

// readFrames 等待 n 个新的预览帧（以时间戳区分）。
func readFrames(s *camera.Session, n int, timeout time.Duration) {
	var last int64
	deadline := time.Now().Add(timeout)
	for got := 0; got < n; {
		if time.Now().After(deadline) {
			fmt.Println("读取预览帧超时")
			os.Exit(1)
		}
		v, err := s.TryAcquireLatestFrame()
		if err != nil || v.Y == nil || v.Timestamp == last {
			if err == nil {
				s.ReleaseFrame()
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		last = v.Timestamp
		got++
		fmt.Printf("预览帧 %d，%dx%d，时间戳 %d\n", got, v.Width, v.Height, v.Timestamp)
		s.ReleaseFrame()
		deadline = time.Now().Add(timeout)
	}
}
