package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"cam2-shutter/pkg/camera"
	"cam2-shutter/pkg/config"
	"cam2-shutter/pkg/device"
	"cam2-shutter/pkg/ov"
	"cam2-shutter/pkg/schedule"
	"cam2-shutter/pkg/storage"
	"cam2-shutter/pkg/storage/consts"
	"cam2-shutter/pkg/utils"
	imageutil "cam2-shutter/pkg/utils/image"
	"cam2-shutter/pkg/utils/ps"
	"cam2-shutter/pkg/video"
	"cam2-shutter/pkg/webdav"
)

const (
	webDavStart    = "start"
	webDavShutdown = "shutdown"

	recordStart = "start"
	recordStop  = "stop"

	captureTimeout = 10 * time.Second
)

var (
	cfg config.Config

	session   *camera.Session
	stg       *storage.Storage
	scheduler *schedule.Scheduler
	dav       *webdav.Webdav

	recorder     *video.Recorder
	recorderLock sync.Mutex

	logger *zap.SugaredLogger
)

func main() {
	var err error
	cfg, err = config.Parse(os.Args[1:])
	if err != nil {
		utils.GetLogger().Fatal(err)
	}
	if err = utils.SetLevel(cfg.LogLevel); err != nil {
		utils.GetLogger().Fatal(err)
	}
	logger = utils.GetLogger()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// init storage
	stg, err = storage.New(cfg.StorageDir)
	if err != nil {
		logger.Fatal(err)
	}
	defer stg.Close()

	dev, err := device.Open(cfg.Device, device.Options{FPS: cfg.Camera.FPS, JPEGQuality: cfg.JPEGQuality}, logger)
	if err != nil {
		logger.Fatal(err)
	}
	session = camera.NewSession(dev, cfg.Camera, camera.WithLogger(logger.Named("camera")))
	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	err = session.Start(startCtx)
	startCancel()
	if err != nil {
		logger.Fatal(err)
	}

	scheduler = schedule.New(ctx, session, stg, logger.Named("schedule"))
	dav = webdav.New(ctx, cfg.WebdavPort, stg.ImageDir(), logger.Named("webdav"))

	// init gin
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	if cfg.StaticsDir != "" {
		if err := registerStaticsDir(r, cfg.StaticsDir, "/"); err != nil {
			logger.Fatal(err)
		}
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	apiRouter := r.Group("/api")

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/status", getStatus)
	deviceRouter.GET("/realtime/video", realtimeVideo)
	deviceRouter.PUT("/webdav", ctlWebdav)

	captureRouter := apiRouter.Group("/capture")
	captureRouter.POST("", capture)
	captureRouter.GET("/latest", latestCapture)
	captureRouter.POST("/save", saveCapture)

	stillRouter := apiRouter.Group("/stills")
	stillRouter.GET("", listStills)
	stillRouter.GET("/:name", getStill)

	apiRouter.PUT("/schedule", updateSchedule)
	apiRouter.DELETE("/schedule", deleteSchedule)
	apiRouter.PUT("/record", ctlRecord)

	utils.ListenAndServe(r, cfg.Port, func() {
		scheduler.Stop()
		dav.Stop()
		stopRecording()
		if err := session.Close(); err != nil {
			logger.Warnf("close camera: %v", err)
		}
	})
}

func getStatus(c *gin.Context) {
	st := ov.Status{
		Device:    cfg.Device,
		Camera:    session.Stats(),
		Settings:  session.Settings(),
		Webdav:    dav.Running(),
		Recording: isRecording(),
		Schedule:  scheduler.Status(),
	}
	if err := session.Err(); err != nil {
		st.Error = err.Error()
	}
	host, err := ps.HostStatus(stg.Root())
	if err != nil {
		logger.Debugf("host status: %v", err)
	}
	st.Host = host

	c.JSON(http.StatusOK, jsend.Success(st))
}

// realtimeVideo streams the latest preview frame as multipart JPEG, at most
// StreamFPS times a second and only when a new frame arrived.
func realtimeVideo(c *gin.Context) {
	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	fps := cfg.StreamFPS
	if fps <= 0 {
		fps = 10
	}
	t := time.NewTicker(time.Second / time.Duration(fps))
	defer t.Stop()

	var last int64
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-t.C:
		}
		if session.LastFrameTimestamp() == last {
			continue
		}
		v, err := session.TryAcquireLatestFrame()
		if err != nil {
			continue
		}
		if v.Y == nil {
			session.ReleaseFrame()
			continue
		}
		last = v.Timestamp
		img := imageutil.Scale(imageutil.FromI420(v.Y, v.U, v.V, v.Width, v.Height), cfg.StreamMaxWidth)
		session.ReleaseFrame()

		partWriter, err := mimeWriter.CreatePart(partHeader)
		if err != nil {
			logger.Warnf("failed to create multi-part writer: %s", err)
			return
		}
		if err := imageutil.EncodeJPEG(img, partWriter, cfg.JPEGQuality); err != nil {
			logger.Warnf("failed to write image: %s", err)
			return
		}
		c.Writer.Flush()
	}
}

func ctlWebdav(c *gin.Context) {
	op := c.Query("op")
	switch op {
	case webDavStart:
		if !dav.Start() {
			c.JSON(http.StatusOK, jsend.Success("the webdav service is already enabled"))
			return
		}
		host, _, _ := strings.Cut(c.Request.Host, ":")
		c.JSON(http.StatusOK, jsend.Success(fmt.Sprintf("%s:%d", host, dav.Port())))
	case webDavShutdown:
		if !dav.Stop() {
			c.JSON(http.StatusOK, jsend.SimpleErr("the webdav service has been shut down"))
			return
		}
		c.JSON(http.StatusOK, jsend.Success(nil))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func capture(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), captureTimeout)
	defer cancel()
	data, err := session.Capture(ctx)
	if err != nil {
		captureErr(c, err)
		return
	}
	still, _ := session.LastStillInfo()
	res := ov.Capture{Sequence: still.Sequence, Size: len(data), At: still.At}
	if c.Query("save") == "true" {
		if res.Path, err = stg.SaveStill(data, still.At); err != nil {
			internalErr(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, jsend.Success(res))
}

func latestCapture(c *gin.Context) {
	data, ok := session.LastStill()
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no still captured yet"))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func saveCapture(c *gin.Context) {
	still, ok := session.LastStillInfo()
	if !ok {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no still captured yet"))
		return
	}
	p, err := stg.SaveStill(still.Data, still.At)
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(ov.Capture{Sequence: still.Sequence, Size: len(still.Data), At: still.At, Path: p}))
}

func listStills(c *gin.Context) {
	files, err := stg.ListStills()
	if err != nil {
		internalErr(c, err)
		return
	}

	c.JSON(http.StatusOK, jsend.Success(files))
}

func getStill(c *gin.Context) {
	name := c.Param("name")
	if name == "latest" {
		latest, err := stg.LatestStillName()
		if err != nil {
			internalErr(c, err)
			return
		}
		name = latest
	}
	p, err := stg.StillPath(name)
	if err != nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
		return
	}
	if _, err := os.Stat(p); err != nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("still not found"))
		return
	}
	c.File(p)
}

func updateSchedule(c *gin.Context) {
	var s ov.Schedule
	if err := c.Bind(&s); err != nil {
		return
	}
	if s.Interval < consts.MinInterval {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(fmt.Sprintf("interval %d less than %d", s.Interval, consts.MinInterval)))
		return
	}
	scheduler.Begin(s.Interval)

	c.JSON(http.StatusOK, jsend.Success(scheduler.Status()))
}

func deleteSchedule(c *gin.Context) {
	scheduler.Stop()
	c.JSON(http.StatusOK, jsend.Success(scheduler.Status()))
}

func ctlRecord(c *gin.Context) {
	switch c.Query("op") {
	case recordStart:
		recorderLock.Lock()
		defer recorderLock.Unlock()
		if recorder != nil {
			c.JSON(http.StatusBadRequest, jsend.SimpleErr(video.ErrRecording.Error()))
			return
		}
		name := "video_" + time.Now().Format(consts.StillTimeLayout) + consts.DefaultVideoExt
		r := video.NewRecorder(session, path.Join(stg.VideoDir(), name), cfg.Video, nil, logger.Named("video"))
		if err := r.Start(context.Background()); err != nil {
			internalErr(c, err)
			return
		}
		recorder = r
		c.JSON(http.StatusOK, jsend.Success(name))
	case recordStop:
		n, err := stopRecording()
		if err != nil {
			internalErr(c, err)
			return
		}
		c.JSON(http.StatusOK, jsend.Success(n))
	default:
		c.JSON(http.StatusBadRequest, jsend.SimpleErr("unknown operation"))
	}
}

func stopRecording() (int, error) {
	recorderLock.Lock()
	defer recorderLock.Unlock()
	if recorder == nil {
		return 0, nil
	}
	n, err := recorder.Stop()
	recorder = nil
	return n, err
}

func isRecording() bool {
	recorderLock.Lock()
	defer recorderLock.Unlock()
	return recorder != nil
}

func registerStaticsDir(group gin.IRoutes, dir, relativeGroup string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("the specified directory %s does not exist", dir)
	}
	dir = filepath.ToSlash(filepath.Clean(dir))
	group.StaticFile(relativeGroup, filepath.Join(dir, "index.html"))
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			relativePath := path.Join(relativeGroup, strings.Replace(filepath.ToSlash(p), dir, "", 1))
			group.StaticFile(relativePath, p)
		}
		return nil
	})
}

func captureErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, camera.ErrCaptureInFlight):
		c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
	case errors.Is(err, camera.ErrNotReady), errors.Is(err, camera.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, jsend.SimpleErr(err.Error()))
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, jsend.SimpleErr(err.Error()))
	default:
		internalErr(c, err)
	}
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
