package logging

import (
	"flag"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Options holds the zap and klog settings bound to command line flags.
type Options struct {
	zap zap.Options
}

// BindFlags registers the --zap-* and klog flags on fs.
func BindFlags(fs *flag.FlagSet) *Options {
	o := &Options{
		zap: zap.Options{
			Development: true,
			TimeEncoder: zapcore.ISO8601TimeEncoder,
		},
	}
	o.zap.BindFlags(fs)
	klog.InitFlags(fs)
	return o
}

// Init builds the logger and installs it for klog and controller-runtime.
// With enabled false it returns a logger that drops everything.
func (o *Options) Init(enabled bool) logr.Logger {
	if !enabled {
		return logr.Discard()
	}

	logger := zap.New(zap.UseFlagOptions(&o.zap))
	klog.SetLogger(logger)
	ctrllog.SetLogger(logger)
	return logger
}
