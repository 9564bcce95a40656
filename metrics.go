package inundation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	geoTIFFBlocksRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inundation_geotiff_blocks_read_total",
		Help: "The total number of GeoTIFF tiles and strips read",
	})
	inundatedCells = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inundation_inundated_cells_total",
		Help: "The total number of raster cells at or below a water level",
	})
	polygonsVectorized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inundation_polygons_vectorized_total",
		Help: "The total number of polygons vectorized from inundation masks",
	})
	transformerCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inundation_transformer_cache_hits_total",
		Help: "The total number of hits on the CRS transformer cache",
	})
	transformerCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inundation_transformer_cache_misses_total",
		Help: "The total number of misses on the CRS transformer cache",
	})
	scenariosTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inundation_scenarios_total",
		Help: "The total number of scenarios computed, by result",
	}, []string{"result"})
	thresholdDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inundation_threshold_duration_seconds",
		Help:    "The time taken to map a water level to polygons",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)
