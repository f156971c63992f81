package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/config"
	"github.com/geoknoesis/rdf-models/modelset"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/geoknoesis/rdf-models/store/pebblestore"
	"github.com/geoknoesis/rdf-models/uri"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds everything a command needs. Close releases it in reverse order.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	conv    *uri.Converter
	store   store.Store
	set     *modelset.ModelSet
	metrics *prometheus.Registry
	nc      *nats.Conn
}

func openApp(ctx context.Context) (a *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := configureLogging(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	a = &app{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			err = errors.CombineErrors(err, a.Close(ctx))
		}
	}()

	if a.conv, a.nc, err = newConverter(cfg, logger); err != nil {
		return a, err
	}
	if a.store, err = openStore(cfg, logger); err != nil {
		return a, err
	}
	opts, err := cfg.Options()
	if err != nil {
		return a, err
	}
	metrics, err := modelset.NewMetrics(a.metrics)
	if err != nil {
		return a, err
	}
	a.set, err = modelset.New(a.store,
		modelset.WithConverter(a.conv),
		modelset.WithOptions(opts),
		modelset.WithBaseNamespaces(cfg.BaseNamespaces()...),
		modelset.WithMetrics(metrics),
		modelset.WithLogger(logger.Named("modelset")),
	)
	return a, err
}

// newConverter builds the URI converter from the mapping rules and the
// enabled handlers. The returned connection is nil unless a NATS URL is
// configured.
func newConverter(cfg *config.Config, logger *zap.Logger) (*uri.Converter, *nats.Conn, error) {
	mapper, err := uri.NewMapper(cfg.URIMap...)
	if err != nil {
		return nil, nil, err
	}
	handlers := []uri.Handler{uri.FileHandler{}}
	if cfg.HTTP.Enabled {
		handlers = append(handlers, uri.NewHTTPHandler(cfg.HTTP.Timeout, cfg.HTTP.HardTimeoutMargin,
			uri.WithHTTPLogger(logger.Named("http"))))
	}
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("rdfmodels"))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "connect to %s", cfg.NATS.URL)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, nil, errors.Wrap(err, "jetstream")
		}
		handlers = append(handlers, uri.NewNATSKVHandler(js, logger.Named("nats-kv")))
	}
	return uri.NewConverter(
		uri.WithMapper(mapper),
		uri.WithHandlers(handlers...),
		uri.WithLogger(logger.Named("uri")),
	), nc, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Store.Kind {
	case config.StorePebble:
		return pebblestore.Open(pebblestore.Config{
			Dirname: cfg.Store.Dir,
			Logger:  logger.Named("storage"),
		})
	default:
		return store.NewMemory(), nil
	}
}

// Close disposes the model set and closes the store and the NATS connection.
func (a *app) Close(ctx context.Context) error {
	var err error
	if a.set != nil {
		err = errors.CombineErrors(err, a.set.Dispose(ctx))
	}
	if a.store != nil {
		err = errors.CombineErrors(err, a.store.Close())
	}
	if a.nc != nil {
		a.nc.Close()
	}
	if viper.GetBool("metrics") {
		if werr := writeMetrics(rootCmd.ErrOrStderr(), a.metrics); werr != nil {
			err = errors.CombineErrors(err, werr)
		}
	}
	_ = a.logger.Sync()
	return err
}

// writeMetrics prints counters and gauges as "name{label=value} value".
func writeMetrics(w io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += fmt.Sprintf("{%s=%q}", l.GetName(), l.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s_count %d", name, h.GetSampleCount()),
					fmt.Sprintf("%s_sum %g", name, h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// parseArg reads a command argument as a URI, or as a local path when it has
// no scheme.
func parseArg(s string) (uri.URI, error) {
	u, err := uri.Parse(s)
	if err == nil && u.IsAbsolute() {
		return u, nil
	}
	if s == "" {
		return uri.URI{}, errors.New("empty argument")
	}
	return uri.FromPath(s), nil
}
