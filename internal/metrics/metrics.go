package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/dontpanicw/PhotoGallery/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "photo_gallery"

// Observer captures telemetry for photo operations.
type Observer interface {
	RecordUpload(duration time.Duration, sizeBytes uint64, err error)
	RecordDelete(duration time.Duration, err error)
	RecordRepair(duration time.Duration, err error)
	RecordOrphanBlob()
}

// PrometheusObserver exports photo metrics to Prometheus.
type PrometheusObserver struct {
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	uploadBytes prometheus.Counter
	orphanBlobs prometheus.Counter
}

// NewPrometheusObserver registers the collectors on reg, reusing ones that
// are already registered.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of photo operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of failed photo operations by stage.",
	}, []string{"operation", "stage"})
	uploadBytes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Cumulative size of normalized photos written to the bucket.",
	})
	orphanBlobs := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orphan_blobs_total",
		Help:      "Blobs written whose database row could not be created.",
	})

	observer := &PrometheusObserver{}
	var err error
	if observer.duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if observer.errors, err = register(reg, errs); err != nil {
		return nil, err
	}
	if observer.uploadBytes, err = register[prometheus.Counter](reg, uploadBytes); err != nil {
		return nil, err
	}
	if observer.orphanBlobs, err = register[prometheus.Counter](reg, orphanBlobs); err != nil {
		return nil, err
	}
	return observer, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register photo metric: %w", err)
	}
	return c, nil
}

func (o *PrometheusObserver) RecordUpload(duration time.Duration, sizeBytes uint64, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues("upload").Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues("upload", stageOf(err)).Inc()
		return
	}
	o.uploadBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordDelete(duration time.Duration, err error) {
	recordOperation(o, "delete", duration, err)
}

func (o *PrometheusObserver) RecordRepair(duration time.Duration, err error) {
	recordOperation(o, "repair", duration, err)
}

func (o *PrometheusObserver) RecordOrphanBlob() {
	if o == nil {
		return
	}
	o.orphanBlobs.Inc()
}

func recordOperation(o *PrometheusObserver, op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(op, stageOf(err)).Inc()
	}
}

func stageOf(err error) string {
	var uploadErr *domain.UploadError
	if errors.As(err, &uploadErr) {
		return string(uploadErr.Stage)
	}
	if errors.Is(err, domain.ErrPhotoNotFound) {
		return "not_found"
	}
	return "other"
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordUpload(time.Duration, uint64, error) {}

func (Nop) RecordDelete(time.Duration, error) {}

func (Nop) RecordRepair(time.Duration, error) {}

func (Nop) RecordOrphanBlob() {}
