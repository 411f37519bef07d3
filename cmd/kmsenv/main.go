package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/ruteri/kms-env-resolver/cmd/flags"
	"github.com/ruteri/kms-env-resolver/common"
	"github.com/ruteri/kms-env-resolver/descriptor"
	"github.com/ruteri/kms-env-resolver/httpserver"
	"github.com/ruteri/kms-env-resolver/interfaces"
	"github.com/ruteri/kms-env-resolver/kms"
	"github.com/ruteri/kms-env-resolver/metrics"
	"github.com/ruteri/kms-env-resolver/plugin"
	"github.com/ruteri/kms-env-resolver/resolver"
	"github.com/urfave/cli/v2"
)

var KmsEnvLogServiceFlag = flags.LogServiceFlagFn(common.PackageName)

func main() {
	app := &cli.App{
		Name:    common.PackageName,
		Usage:   "Resolve KMS-encrypted environment variables in deployment descriptors",
		Version: common.Version,
		Flags:   append(append([]cli.Flag{KmsEnvLogServiceFlag}, flags.CommonFlags...), flags.ResolverFlags...),
		Commands: []*cli.Command{
			{
				Name:   "resolve",
				Usage:  "Decrypt every reference and print the resolved descriptor",
				Flags:  []cli.Flag{flags.DescriptorFlag, flags.OutputFormatFlag},
				Action: resolveAction,
			},
			{
				Name:      "run",
				Usage:     "Run a command with a function's resolved environment",
				ArgsUsage: "-- command [args...]",
				Flags:     []cli.Flag{flags.DescriptorFlag, requiredFunctionFlag()},
				Action:    runAction,
			},
			{
				Name:      "hook",
				Usage:     "Run a lifecycle hook, listing hooks when none is given",
				ArgsUsage: "<hook> [-- command [args...]]",
				Flags:     []cli.Flag{flags.DescriptorFlag, flags.FunctionFlag, flags.OutputFormatFlag},
				Action:    hookAction,
			},
			{
				Name:   "serve",
				Usage:  "Serve descriptor resolution over HTTP",
				Flags:  flags.ServerFlags,
				Action: serveAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func requiredFunctionFlag() cli.Flag {
	f := *flags.FunctionFlag
	f.Required = true
	return &f
}

// session bundles what every command needs to resolve a descriptor.
type session struct {
	log        *slog.Logger
	descriptor *descriptor.Descriptor
	tree       *interfaces.ConfigurationTree
	resolver   *resolver.Resolver
}

func newSession(cCtx *cli.Context) (*session, error) {
	logger := flags.SetupLogger(cCtx)

	path := cCtx.String(flags.DescriptorFlag.Name)
	desc, err := descriptor.Load(path)
	if err != nil {
		logger.Error("Failed to load descriptor", "path", path, "err", err)
		return nil, err
	}

	tree, err := desc.Tree()
	if err != nil {
		logger.Error("Invalid descriptor", "path", path, "err", err)
		return nil, err
	}

	cfg := flags.ResolverConfig(cCtx, desc)
	decrypter := kms.NewAWSDecrypter(flags.AWSConfig(cCtx), logger)

	return &session{
		log:        logger,
		descriptor: desc,
		tree:       tree,
		resolver:   resolver.NewResolver(cfg, decrypter, logger, nil),
	}, nil
}

func (s *session) writeDescriptor(cCtx *cli.Context) error {
	format := s.descriptor.Format
	if name := cCtx.String(flags.OutputFormatFlag.Name); name != "" {
		f, err := descriptor.ParseFormat(name)
		if err != nil {
			return err
		}
		format = f
	}
	return s.descriptor.EncodeAs(cCtx.App.Writer, format)
}

func resolveAction(cCtx *cli.Context) error {
	s, err := newSession(cCtx)
	if err != nil {
		return err
	}

	if err := s.resolver.ResolveTree(cCtx.Context, s.tree); err != nil {
		return err
	}
	return s.writeDescriptor(cCtx)
}

func runAction(cCtx *cli.Context) error {
	function := cCtx.String(flags.FunctionFlag.Name)
	if cCtx.NArg() == 0 {
		return errors.New("no command given")
	}

	s, err := newSession(cCtx)
	if err != nil {
		return err
	}

	if _, ok := s.tree.Unit(function); !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrUnknownUnit, function)
	}

	if err := s.resolver.ResolveTree(cCtx.Context, s.tree); err != nil {
		return err
	}
	if err := resolver.ProjectToProcessEnvironment(s.tree, function, resolver.OSEnvironment{}); err != nil {
		return err
	}

	return execCommand(cCtx.Context, s.log, cCtx.Args().Slice())
}

func hookAction(cCtx *cli.Context) error {
	s, err := newSession(cCtx)
	if err != nil {
		return err
	}

	function := cCtx.String(flags.FunctionFlag.Name)
	if function != "" {
		if _, ok := s.tree.Unit(function); !ok {
			return fmt.Errorf("%w: %s", interfaces.ErrUnknownUnit, function)
		}
	}

	p := plugin.New(s.tree, s.resolver, resolver.OSEnvironment{}, plugin.Options{Function: function}, s.log)

	if cCtx.NArg() == 0 {
		for _, hook := range p.Hooks() {
			fmt.Fprintln(cCtx.App.Writer, hook)
		}
		return nil
	}

	hook := cCtx.Args().First()
	// The host fires loadEnvVars before invoke; a standalone invoke does both.
	if hook == plugin.HookBeforeInvokeLocal {
		if err := p.Run(cCtx.Context, plugin.HookBeforeInvokeLocalLoadEnv); err != nil {
			return err
		}
	}
	if err := p.Run(cCtx.Context, hook); err != nil {
		return err
	}

	if command := cCtx.Args().Tail(); len(command) > 0 {
		return execCommand(cCtx.Context, s.log, command)
	}
	return s.writeDescriptor(cCtx)
}

func serveAction(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	resolverMetrics := metrics.NewResolverMetrics(common.PackageName)
	decrypter := kms.NewAWSDecrypter(flags.AWSConfig(cCtx), logger)
	r := resolver.NewResolver(flags.ResolverConfig(cCtx, nil), decrypter, logger, resolverMetrics)

	listenAddr := cCtx.String(flags.ListenAddrFlag.Name)
	srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger, listenAddr), httpserver.NewHandler(r, logger), resolverMetrics)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	srv.RunInBackground()

	// Wait for termination signal
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	srv.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// execCommand runs command with the current process environment and exits
// with its status.
func execCommand(ctx context.Context, logger *slog.Logger, command []string) error {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Env = os.Environ()
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Debug("Executing command", "command", command[0])
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return cli.Exit("", exitErr.ExitCode())
	}
	return err
}
