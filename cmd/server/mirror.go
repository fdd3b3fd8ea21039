package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"warband.ai/internal/logging"
	"warband.ai/internal/persistence/objstore"
)

// mirrorRuntime keeps rotated log segments, snapshots, and run archives
// in an S3-compatible bucket. Off by default; a soak box with no bucket
// configured still runs fine on local disk.
type mirrorRuntime struct {
	enabled      bool
	rotateLayout string
	mirror       *objstore.Mirror
}

func buildMirrorRuntime(dataDir string, log logging.Logger) (*mirrorRuntime, error) {
	enabled := envBool("WB_MIRROR", false)
	if !enabled {
		return &mirrorRuntime{enabled: false}, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("WB_S3_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("WB_S3_BUCKET"))
	region := strings.TrimSpace(os.Getenv("WB_S3_REGION"))
	accessKeyID := strings.TrimSpace(os.Getenv("WB_S3_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("WB_S3_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("WB_S3_PREFIX"))

	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("WB_MIRROR=true but WB_S3_ENDPOINT/WB_S3_BUCKET/WB_S3_ACCESS_KEY_ID/WB_S3_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := objstore.New(endpoint, bucket, region, accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}

	workers := envInt("WB_S3_UPLOAD_WORKERS", 2)
	queueCapacity := envInt("WB_S3_QUEUE_CAPACITY", 0)
	mirror := objstore.NewMirror(client, dataDir, prefix, workers, queueCapacity, 0, log)

	return &mirrorRuntime{
		enabled:      true,
		rotateLayout: "2006-01-02-15-04", // 1-minute segments to lower RPO.
		mirror:       mirror,
	}, nil
}

func (r *mirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

// registerMirrorMetrics publishes the mirror queue counters next to the
// engine collector on the same registry.
func registerMirrorMetrics(reg prometheus.Registerer, r *mirrorRuntime) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	m := r.mirror
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mirror_queue_depth",
			Help: "Current object mirror queue depth.",
		}, func() float64 { return float64(m.Stats().QueueDepth) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mirror_queue_capacity",
			Help: "Object mirror queue capacity.",
		}, func() float64 { return float64(m.Stats().QueueCapacity) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "mirror_enqueued_total",
			Help: "Total mirror enqueue attempts.",
		}, func() float64 { return float64(m.Stats().EnqueuedTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "mirror_queue_saturated_total",
			Help: "Enqueue attempts that found the queue saturated.",
		}, func() float64 { return float64(m.Stats().QueueSaturatedTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "mirror_dropped_total",
			Help: "Files dropped because the queue stayed saturated.",
		}, func() float64 { return float64(m.Stats().DroppedTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "mirror_upload_success_total",
			Help: "Successful mirror uploads.",
		}, func() float64 { return float64(m.Stats().UploadSuccessTotal) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "mirror_upload_fail_total",
			Help: "Mirror uploads that failed after retries.",
		}, func() float64 { return float64(m.Stats().UploadFailTotal) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mirror_last_success_unix",
			Help: "Unix timestamp of the last successful mirror upload.",
		}, func() float64 { return float64(m.Stats().LastSuccessUnix) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mirror_last_error_unix",
			Help: "Unix timestamp of the last failed mirror upload.",
		}, func() float64 { return float64(m.Stats().LastErrorUnix) }),
	)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
