package pillcolor

import (
	"image"
	"sort"

	"pillscan/internal/config"
	"pillscan/pkg/colorutil"

	"gocv.io/x/gocv"
)

// Classifier names the dominant colors of a cropped pill region.
type Classifier struct {
	cfg   config.ColorSettings
	rules config.ColorRules
}

// NewClassifier builds a classifier from settings and calibration rules.
func NewClassifier(cfg config.ColorSettings, rules config.ColorRules) *Classifier {
	if cfg.Clusters <= 0 {
		cfg.Clusters = 3
	}
	return &Classifier{cfg: cfg, rules: rules}
}

// Classify returns the dominant color labels of the crop: deduplicated,
// first-seen order, at most cfg.MaxLabels entries. An empty slice means the
// stage failed; callers degrade rather than abort.
func (c *Classifier) Classify(cropped gocv.Mat) []Label {
	if cropped.Empty() {
		return nil
	}

	center := c.centerRegion(cropped)
	defer center.Close()

	boosted := increaseBrightness(center, c.cfg.BrightnessBoost)
	defer boosted.Close()

	clusters := c.clusterPixels(boosted)
	if len(clusters) == 0 {
		return nil
	}

	clusters = discardBlack(clusters, c.cfg.BlackVMax)
	clusters = mergeClusters(clusters)
	clusters = filterByRatio(clusters, c.cfg.MinClusterRatio)

	labels := make([]Label, 0, len(clusters))
	for _, cl := range clusters {
		labels = append(labels, classifyHSV(cl.HSV, c.rules))
	}
	return dedupe(labels, c.cfg.MaxLabels)
}

// Clusters exposes the merged, filtered clusters for the calibration logger.
func (c *Classifier) Clusters(cropped gocv.Mat) []Cluster {
	if cropped.Empty() {
		return nil
	}
	center := c.centerRegion(cropped)
	defer center.Close()
	boosted := increaseBrightness(center, c.cfg.BrightnessBoost)
	defer boosted.Close()

	clusters := c.clusterPixels(boosted)
	clusters = discardBlack(clusters, c.cfg.BlackVMax)
	clusters = mergeClusters(clusters)
	return filterByRatio(clusters, c.cfg.MinClusterRatio)
}

// centerRegion cuts a central square out of the crop, inset from the edges so
// background and shadow at the rim stay out of the sample.
func (c *Classifier) centerRegion(img gocv.Mat) gocv.Mat {
	w, h := img.Cols(), img.Rows()

	mx := int(float64(w) * c.cfg.MarginRatio)
	my := int(float64(h) * c.cfg.MarginRatio)
	iw, ih := w-2*mx, h-2*my
	if iw < 1 || ih < 1 {
		return img.Clone()
	}

	side := min(iw, ih)
	if c.cfg.CenterSize > 0 && side > c.cfg.CenterSize {
		side = c.cfg.CenterSize
	}
	cx, cy := mx+iw/2, my+ih/2
	rect := image.Rect(cx-side/2, cy-side/2, cx+side/2+side%2, cy+side/2+side%2)
	rect = rect.Intersect(image.Rect(0, 0, w, h))

	region := img.Region(rect)
	defer region.Close()
	return region.Clone()
}

// increaseBrightness adds value to the V channel to normalize under-lit
// photos. Saturating add, so bright pixels stay at 255.
func increaseBrightness(img gocv.Mat, value int) gocv.Mat {
	if value <= 0 {
		return img.Clone()
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(img, &hsv, gocv.ColorBGRToHSV)

	channels := gocv.Split(hsv)
	channels[2].AddUChar(uint8(value))
	gocv.Merge(channels, &hsv)
	for _, ch := range channels {
		ch.Close()
	}

	out := gocv.NewMat()
	gocv.CvtColor(hsv, &out, gocv.ColorHSVToBGR)
	return out
}

// clusterPixels runs k-means over the region's pixels in RGB space and
// returns clusters ordered by pixel count, largest first.
func (c *Classifier) clusterPixels(img gocv.Mat) []Cluster {
	// Bound the sample size; cluster ratios are what matter, not resolution.
	sample := gocv.NewMat()
	defer sample.Close()
	gocv.Resize(img, &sample, image.Pt(160, 160), 0, 0, gocv.InterpolationArea)

	h, w := sample.Rows(), sample.Cols()
	pixels := gocv.NewMatWithSize(h*w, 3, gocv.MatTypeCV32F)
	defer pixels.Close()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			vec := sample.GetVecbAt(y, x) // BGR
			pixels.SetFloatAt(idx, 0, float32(vec[2]))
			pixels.SetFloatAt(idx, 1, float32(vec[1]))
			pixels.SetFloatAt(idx, 2, float32(vec[0]))
		}
	}

	k := c.cfg.Clusters
	labels := gocv.NewMat()
	defer labels.Close()
	centers := gocv.NewMat()
	defer centers.Close()

	criteria := gocv.NewTermCriteria(gocv.EPS+gocv.MaxIter, 20, 1.0)
	gocv.KMeans(pixels, k, &labels, criteria, 10, gocv.KMeansPPCenters, &centers)

	counts := make([]int, k)
	for i := 0; i < labels.Rows(); i++ {
		cl := int(labels.GetIntAt(i, 0))
		if cl >= 0 && cl < k {
			counts[cl]++
		}
	}

	clusters := make([]Cluster, 0, k)
	for i := 0; i < k && i < centers.Rows(); i++ {
		if counts[i] == 0 {
			continue
		}
		rgb := colorutil.RGB{
			R: clampByte(centers.GetFloatAt(i, 0)),
			G: clampByte(centers.GetFloatAt(i, 1)),
			B: clampByte(centers.GetFloatAt(i, 2)),
		}
		clusters = append(clusters, Cluster{RGB: rgb, HSV: rgb.ToHSV(), Count: counts[i]})
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].Count > clusters[j].Count
	})
	return clusters
}

// discardBlack removes clusters darker than vMax unless that would remove
// every cluster (genuinely black pills exist).
func discardBlack(clusters []Cluster, vMax float64) []Cluster {
	var kept []Cluster
	for _, c := range clusters {
		if c.HSV.V >= vMax {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return clusters
	}
	return kept
}

func clampByte(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}
