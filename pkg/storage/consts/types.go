package consts

const (
	DefaultImagesDir = "images"
	DefaultVideosDir = "videos"
	DefaultInfoFile  = "info.json"

	StillPrefix     = "still_"
	DefaultImageExt = ".jpg"
	DefaultVideoExt = ".avi"

	// still_yyyy_MM_dd_HH_mm_ss, followed by _SSS milliseconds
	StillTimeLayout = "2006_01_02_15_04_05"

	DefaultFilePerm = 0660
	DefaultDirPerm  = 0750

	// MinInterval is the shortest schedule interval in ms.
	MinInterval = 1000
)
