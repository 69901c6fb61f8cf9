package params

// Default dimensions
var (
	DefaultPreviewSize   = Size{640, 480}
	DefaultPictureSize   = Size{640, 480}
	DefaultThumbnailSize = Size{512, 384}
)

// PreviewSizes is ordered largest first; board masks select a subset by index
var PreviewSizes = []Size{
	{1920, 1088}, {1280, 720}, {960, 720}, {800, 480}, {768, 432}, {720, 480},
	{640, 480}, {576, 432}, {480, 320}, {384, 288}, {352, 288}, {320, 240},
	{240, 160}, {176, 144},
}

var VideoSizes = []Size{
	{1920, 1088}, {1280, 720}, {960, 720}, {800, 480}, {768, 432}, {720, 480},
	{640, 480}, {480, 320}, {352, 288}, {320, 240}, {176, 144},
}

var PictureSizes = []Size{
	{4000, 3000}, {3264, 2448}, {3264, 1840}, {2592, 1944}, {2992, 1680},
	{2592, 1456}, {2048, 1536}, {1920, 1088}, {1600, 1200}, {1280, 768},
	{1280, 720}, {1024, 768}, {800, 600}, {800, 480}, {640, 480}, {352, 288},
	{320, 240}, {176, 144},
}

// ZSLPictureSizes is the reduced list offered while zero shutter lag is on
var ZSLPictureSizes = []Size{
	{1024, 768}, {800, 600}, {800, 480}, {640, 480}, {352, 288}, {320, 240},
	{176, 144},
}

var HFRSizes = []Size{{800, 480}, {640, 480}}

// JpegThumbnailSizes includes 0x0, meaning "no thumbnail"
var JpegThumbnailSizes = []Size{
	{512, 288}, {480, 288}, {432, 288}, {512, 384}, {352, 288}, {640, 480}, {0, 0},
}

// thumbnailByAspect picks a thumbnail for a picture aspect ratio in Q12
var thumbnailByAspect = []struct {
	aspect int
	size   Size
}{
	{7281, Size{512, 288}},
	{6826, Size{480, 288}},
	{6808, Size{256, 154}},
	{6144, Size{432, 288}},
	{5461, Size{512, 384}},
	{5006, Size{352, 288}},
}

// ThumbnailForPicture returns the thumbnail size matching the picture's aspect
// ratio, falling back to the default 4:3 size
func ThumbnailForPicture(picture Size) Size {
	if picture.Height == 0 {
		return DefaultThumbnailSize
	}
	aspect := picture.Width * 4096 / picture.Height
	for _, t := range thumbnailByAspect {
		if t.aspect == aspect {
			return t.size
		}
	}
	return DefaultThumbnailSize
}
