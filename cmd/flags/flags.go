package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/kms-env-resolver/common"
	"github.com/ruteri/kms-env-resolver/descriptor"
	"github.com/ruteri/kms-env-resolver/httpserver"
	"github.com/ruteri/kms-env-resolver/kms"
	"github.com/ruteri/kms-env-resolver/resolver"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// ResolverConfig builds the resolver configuration. The plugin region is
// --region when set, else the descriptor's provider.region.
func ResolverConfig(cCtx *cli.Context, desc *descriptor.Descriptor) resolver.Config {
	region := cCtx.String(RegionFlag.Name)
	if region == "" && desc != nil {
		region = desc.Region()
	}

	return resolver.Config{
		DefaultRegion:  cCtx.String(DefaultRegionFlag.Name),
		Region:         region,
		MaxConcurrency: cCtx.Int(MaxConcurrencyFlag.Name),
	}
}

func AWSConfig(cCtx *cli.Context) kms.AWSConfig {
	return kms.AWSConfig{
		Endpoint:  cCtx.String(KmsEndpointFlag.Name),
		Profile:   cCtx.String(AwsProfileFlag.Name),
		AccessKey: cCtx.String(AwsAccessKeyFlag.Name),
		SecretKey: cCtx.String(AwsSecretKeyFlag.Name),
	}
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var DescriptorFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Value:   "serverless.yml",
	Usage:   "deployment descriptor to resolve (.yml, .yaml or .json)",
}
var OutputFormatFlag = &cli.StringFlag{
	Name:  "output",
	Usage: "output format: 'yaml' or 'json' (defaults to the descriptor's format)",
}
var FunctionFlag = &cli.StringFlag{
	Name:    "function",
	Aliases: []string{"f"},
	Usage:   "function whose environment is projected into the process",
}

var DefaultRegionFlag = &cli.StringFlag{
	Name:    "default-region",
	Value:   resolver.DefaultRegion,
	EnvVars: []string{"KMSENV_DEFAULT_REGION"},
	Usage:   "region used when neither --region nor the reference names one",
}
var RegionFlag = &cli.StringFlag{
	Name:    "region",
	EnvVars: []string{"AWS_REGION"},
	Usage:   "plugin region, overrides the descriptor's provider.region",
}
var MaxConcurrencyFlag = &cli.IntFlag{
	Name:  "max-concurrency",
	Value: 0,
	Usage: "maximum in-flight decryptions per scope, 0 for unbounded",
}

var KmsEndpointFlag = &cli.StringFlag{
	Name:    "kms-endpoint",
	EnvVars: []string{"KMSENV_KMS_ENDPOINT"},
	Usage:   "custom KMS endpoint, e.g. a local KMS emulator",
}
var AwsProfileFlag = &cli.StringFlag{
	Name:    "aws-profile",
	EnvVars: []string{"AWS_PROFILE"},
	Usage:   "shared config profile used for KMS credentials",
}
var AwsAccessKeyFlag = &cli.StringFlag{
	Name:    "aws-access-key-id",
	EnvVars: []string{"KMSENV_AWS_ACCESS_KEY_ID"},
	Usage:   "static access key, requires --aws-secret-access-key",
}
var AwsSecretKeyFlag = &cli.StringFlag{
	Name:    "aws-secret-access-key",
	EnvVars: []string{"KMSENV_AWS_SECRET_ACCESS_KEY"},
	Usage:   "static secret key, requires --aws-access-key-id",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
}

var ResolverFlags = []cli.Flag{
	DefaultRegionFlag,
	RegionFlag,
	MaxConcurrencyFlag,
	KmsEndpointFlag,
	AwsProfileFlag,
	AwsAccessKeyFlag,
	AwsSecretKeyFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
